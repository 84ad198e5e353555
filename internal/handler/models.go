package handler

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// PagedData 分页数据
type PagedData struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// SubmitSupportRequest 提交贡献请求
type SubmitSupportRequest struct {
	ToAddress string  `json:"to_address" binding:"required"`
	Amount    string  `json:"amount" binding:"required"`
	Message   string  `json:"message" binding:"max=500"`
	ChainID   int64   `json:"chain_id" binding:"required"`
	ProjectID *string `json:"project_id"`
}

// ChainResponse 链信息
type ChainResponse struct {
	ChainID                int64   `json:"chain_id"`
	Key                    string  `json:"key"`
	Name                   string  `json:"name"`
	NativeCurrencySymbol   string  `json:"native_currency_symbol"`
	NativeCurrencyDecimals uint8   `json:"native_currency_decimals"`
	RPCURL                 string  `json:"rpc_url"`
	ExplorerBaseURL        string  `json:"explorer_base_url"`
	ContractPath           bool    `json:"contract_path"`
	FeeContractAddress     *string `json:"fee_contract_address,omitempty"`
	PlatformFeeBps         int64   `json:"platform_fee_bps"`
}
