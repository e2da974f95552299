package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crmhub/internal/common"
	"crmhub/internal/security"
	"crmhub/internal/tenant"

	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// DialFunc 建立并关闭一次 SMTP 认证连接
type DialFunc func(cfg *Config, password string) error

// Service 邮件配置管理，SMTP 密码加密后落库
type Service struct {
	*common.BaseService
	cipher *security.Cipher
	dial   DialFunc
}

// NewService 创建邮件配置服务
func NewService(db *gorm.DB, cipher *security.Cipher) *Service {
	return &Service{BaseService: common.NewBaseService(db), cipher: cipher, dial: dialSMTP}
}

// Get 当前组织的邮件配置，没有组织的调用方（超级管理员）没有配置
func (s *Service) Get(ctx context.Context) (*Config, error) {
	if tenant.OrgID(ctx) == "" {
		return nil, common.NewBusinessErrorWithCode(common.CodeNotFound)
	}
	var cfg Config
	if err := s.Conn(ctx).First(&cfg).Error; err != nil {
		return nil, common.TranslateNotFound(err, common.CodeNotFound)
	}
	return &cfg, nil
}

// Upsert 创建或更新当前组织的邮件配置
func (s *Service) Upsert(ctx context.Context, req *UpsertConfigRequest) (*Config, error) {
	if tenant.OrgID(ctx) == "" {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "邮件配置必须属于某个组织")
	}
	host := strings.TrimSpace(req.Host)
	if host == "" || req.Port <= 0 || req.Port > 65535 {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "SMTP 地址或端口无效")
	}

	sealed := ""
	if req.Password != "" {
		enc, err := s.cipher.Encrypt(req.Password)
		if err != nil {
			return nil, fmt.Errorf("加密 SMTP 密码失败: %w", err)
		}
		sealed = enc
	}

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var existing Config
		err := tx.First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cfg := &Config{
				Host:        host,
				Port:        req.Port,
				Username:    req.Username,
				Password:    sealed,
				FromAddress: req.FromAddress,
				FromName:    req.FromName,
				UseTLS:      req.UseTLS == nil || *req.UseTLS,
			}
			if err := tx.Create(cfg).Error; err != nil {
				return fmt.Errorf("创建邮件配置失败: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("查询邮件配置失败: %w", err)
		}

		updates := map[string]any{
			"host":         host,
			"port":         req.Port,
			"username":     req.Username,
			"from_address": req.FromAddress,
			"from_name":    req.FromName,
		}
		if sealed != "" {
			updates["password"] = sealed
		}
		if req.UseTLS != nil {
			updates["use_tls"] = *req.UseTLS
		}
		if err := tx.Model(&Config{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("更新邮件配置失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx)
}

// SMTPPassword 解密当前组织的 SMTP 密码，未设置时返回空串
func (s *Service) SMTPPassword(ctx context.Context) (string, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	if cfg.Password == "" {
		return "", nil
	}
	return s.cipher.Decrypt(cfg.Password)
}

// Verify 用保存的配置登录 SMTP 服务器，不发送邮件
func (s *Service) Verify(ctx context.Context) error {
	cfg, err := s.Get(ctx)
	if err != nil {
		return err
	}
	password, err := s.SMTPPassword(ctx)
	if err != nil {
		return fmt.Errorf("解密 SMTP 密码失败: %w", err)
	}
	if err := s.dial(cfg, password); err != nil {
		return common.NewBusinessError(common.CodeSMTPUnreachable, fmt.Sprintf("SMTP 连接验证失败: %v", err))
	}
	return nil
}

func dialSMTP(cfg *Config, password string) error {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, password)
	d.SSL = cfg.UseTLS && cfg.Port == 465
	sc, err := d.Dial()
	if err != nil {
		return err
	}
	return sc.Close()
}
