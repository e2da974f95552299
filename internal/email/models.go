package email

import "crmhub/internal/common"

// Config 组织自定义的 SMTP 配置，每个组织一条
type Config struct {
	common.BaseModel
	OrgID       string `json:"org_id" gorm:"size:36;not null;uniqueIndex"`
	Host        string `json:"host" gorm:"size:255;not null"`
	Port        int    `json:"port" gorm:"not null;default:587"`
	Username    string `json:"username" gorm:"size:255"`
	Password    string `json:"-" gorm:"size:500"`
	FromAddress string `json:"from_address" gorm:"size:255;not null"`
	FromName    string `json:"from_name" gorm:"size:255"`
	UseTLS      bool   `json:"use_tls" gorm:"not null"`
}

// TableName 表名
func (Config) TableName() string {
	return "email_configs"
}

// ConfigView 对外返回的配置，不包含密码
type ConfigView struct {
	*Config
	HasPassword bool `json:"has_password"`
}

// NewConfigView 构造对外视图
func NewConfigView(c *Config) *ConfigView {
	return &ConfigView{Config: c, HasPassword: c.Password != ""}
}

// UpsertConfigRequest 保存配置请求，密码留空表示保持不变
type UpsertConfigRequest struct {
	Host        string `json:"host" binding:"required"`
	Port        int    `json:"port" binding:"required,min=1,max=65535"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromAddress string `json:"from_address" binding:"required,email"`
	FromName    string `json:"from_name"`
	UseTLS      *bool  `json:"use_tls"`
}
