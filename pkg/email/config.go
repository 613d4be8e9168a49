package email

// Config holds the sender identity and the Postmark credentials. With no
// Postmark tokens the app falls back to DevSender writing into DevDir.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@examgate.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@examgate.local"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
	ProductName          string `env:"EMAIL_PRODUCT_NAME" envDefault:"ExamGate"`
}

// Postmark reports whether Postmark credentials are configured.
func (c Config) Postmark() bool {
	return c.PostmarkServerToken != "" || c.PostmarkAccountToken != ""
}
