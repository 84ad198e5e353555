package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Database DatabaseConfig         `mapstructure:"database"`
	Redis    RedisConfig            `mapstructure:"redis"`
	Chains   map[string]ChainConfig `mapstructure:"chains"`
	Contract ContractConfig         `mapstructure:"contract"`
	Wallet   WalletConfig           `mapstructure:"wallet"`
	Task     TaskConfig             `mapstructure:"task"`
	Log      LogConfig              `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Charset  string `mapstructure:"charset"`
}

// DSN 根据驱动生成连接字符串
func (d DatabaseConfig) DSN() string {
	if d.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.Port, d.DBName, d.Charset)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChainConfig 单链覆盖配置，键为链名称 (celo, base)
type ChainConfig struct {
	RpcUrl      string `mapstructure:"rpc_url"`      // 覆盖默认RPC节点
	FeeContract string `mapstructure:"fee_contract"` // 分账合约地址，为空表示仅支持直接转账
	StartBlock  uint64 `mapstructure:"start_block"`  // 合约部署区块，索引起点
}

// ContractConfig 分账合约ABI，为空时使用内置ABI
type ContractConfig struct {
	ABIPath string `mapstructure:"abi_path"` // ABI 文件或 hardhat 编译输出
}

// WalletConfig 服务端签名钱包
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SubmitEnabled bool   `mapstructure:"submit_enabled"` // 是否开放服务端代付提交接口
	APIToken      string `mapstructure:"api_token"`      // 提交接口的 Bearer token
}

type TaskConfig struct {
	ReconcileInterval int    `mapstructure:"reconcile_interval"` // 秒
	BatchSize         int    `mapstructure:"batch_size"`
	Workers           int    `mapstructure:"workers"`
	MinConfirmations  uint64 `mapstructure:"min_confirmations"` // 低于该确认数的交易保持 pending

	IndexEnabled    bool   `mapstructure:"index_enabled"`
	IndexInterval   int    `mapstructure:"index_interval"`    // 秒
	IndexBlockRange uint64 `mapstructure:"index_block_range"` // 单次 eth_getLogs 区块跨度
}

// Interval 对账任务间隔
func (t TaskConfig) Interval() time.Duration {
	return time.Duration(t.ReconcileInterval) * time.Second
}

// IndexEvery 事件索引任务间隔
func (t TaskConfig) IndexEvery() time.Duration {
	return time.Duration(t.IndexInterval) * time.Second
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// 分账合约地址的环境变量，与前端部署保持一致
var contractEnvKeys = map[string]string{
	"celo": "GASMEUP_CONTRACT_CELO",
	"base": "GASMEUP_CONTRACT_BASE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "gasmeup")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("chains.celo.rpc_url", "")
	v.SetDefault("chains.celo.fee_contract", "")
	v.SetDefault("chains.celo.start_block", 0)
	v.SetDefault("chains.base.rpc_url", "")
	v.SetDefault("chains.base.fee_contract", "")
	v.SetDefault("chains.base.start_block", 0)
	v.SetDefault("contract.abi_path", "")
	v.SetDefault("wallet.submit_enabled", false)
	v.SetDefault("wallet.api_token", "")
	v.SetDefault("task.reconcile_interval", 60)
	v.SetDefault("task.batch_size", 100)
	v.SetDefault("task.workers", 8)
	v.SetDefault("task.min_confirmations", 1)
	v.SetDefault("task.index_enabled", true)
	v.SetDefault("task.index_interval", 60)
	v.SetDefault("task.index_block_range", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Load 加载配置，找不到配置文件时使用默认值和环境变量
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gasmeup")

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Could not read config file: %v", err)
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}
	return cfg
}

// LoadFile 从指定文件加载配置
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// 自动读取环境变量, 例如 DATABASE_HOST, CHAINS_BASE_FEE_CONTRACT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 显式绑定会覆盖自动映射，两个变量名都要列出，前者优先
	for name, key := range contractEnvKeys {
		auto := "CHAINS_" + strings.ToUpper(name) + "_FEE_CONTRACT"
		if err := v.BindEnv("chains."+name+".fee_contract", auto, key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
