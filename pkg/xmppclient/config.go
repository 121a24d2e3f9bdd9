package xmppclient

import (
	"context"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppsasl"
)

const (
	DefaultPort               = 5222
	DefaultNotificationBuffer = 64
)

type Config struct {
	// JID of the account. A resource part is used when Resource is empty.
	JID      string `yaml:"jid" env:"XMPP_JID"`
	Password string `yaml:"password" env:"XMPP_PASSWORD"`
	Resource string `yaml:"resource" env:"XMPP_RESOURCE"`

	// Host and Port skip the SRV lookup when Host is set.
	Host string `yaml:"host" env:"XMPP_HOST"`
	Port int    `yaml:"port" env:"XMPP_PORT"`
	// ServerName is checked against the server certificate. Defaults to
	// the JID's domain.
	ServerName         string `yaml:"server_name" env:"XMPP_SERVER_NAME"`
	RequireTLS         bool   `yaml:"require_tls" env:"XMPP_REQUIRE_TLS"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"XMPP_INSECURE_SKIP_VERIFY"`
	// DNSServer is the host:port used for SRV lookups. Defaults to the
	// system resolver configuration.
	DNSServer string `yaml:"dns_server" env:"XMPP_DNS_SERVER"`

	NotificationBuffer int `yaml:"notification_buffer" env:"XMPP_NOTIFICATION_BUFFER"`

	OAuth2 OAuth2Config `yaml:"oauth2"`
}

// OAuth2Config enables X-OAUTH2. Either a ready access token or a token
// endpoint accepting the password grant.
type OAuth2Config struct {
	AccessToken   string `yaml:"access_token" env:"XMPP_OAUTH2_ACCESS_TOKEN"`
	TokenEndpoint string `yaml:"token_endpoint" env:"XMPP_OAUTH2_TOKEN_ENDPOINT"`
	ClientID      string `yaml:"client_id" env:"XMPP_OAUTH2_CLIENT_ID"`
	ClientSecret  string `yaml:"client_secret" env:"XMPP_OAUTH2_CLIENT_SECRET"`
}

// LoadConfig reads the YAML file at path, if any, then applies the XMPP_*
// environment variables on top of it.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "unable to parse config file")
		}
	}
	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, errors.Wrap(err, "unable to decode environment")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = DefaultNotificationBuffer
	}
}

func (cfg *Config) Validate() error {
	jid, err := cfg.AccountJID()
	if err != nil {
		return err
	}
	if jid.Local == "" {
		return errors.New("config: jid must contain a localpart")
	}
	if cfg.Password == "" && cfg.OAuth2.AccessToken == "" {
		return errors.New("config: either password or oauth2.access_token is required")
	}
	if cfg.OAuth2.TokenEndpoint != "" && cfg.Password == "" {
		return errors.New("config: oauth2.token_endpoint requires a password")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return errors.Errorf("config: invalid port %d", cfg.Port)
	}
	return nil
}

// AccountJID parses the configured JID.
func (cfg *Config) AccountJID() (xmppcore.JID, error) {
	jid, err := xmppcore.ParseJID(cfg.JID)
	if err != nil {
		return xmppcore.JID{}, errors.Wrap(err, "config: invalid jid")
	}
	return jid, nil
}

// BindResource is the resource requested when binding.
func (cfg *Config) BindResource() string {
	if cfg.Resource != "" {
		return cfg.Resource
	}
	jid, err := cfg.AccountJID()
	if err != nil {
		return ""
	}
	return jid.Resource
}

// TLSServerName is the name verified against the server certificate.
func (cfg *Config) TLSServerName() string {
	if cfg.ServerName != "" {
		return cfg.ServerName
	}
	jid, err := cfg.AccountJID()
	if err != nil {
		return ""
	}
	return jid.Domain
}

// Credentials builds the SASL credentials. The token source, when
// configured, makes X-OAUTH2 available.
func (cfg *Config) Credentials() (xmppsasl.Credentials, error) {
	jid, err := cfg.AccountJID()
	if err != nil {
		return xmppsasl.Credentials{}, err
	}
	creds := xmppsasl.Credentials{
		Username: jid.Local,
		Domain:   jid.Domain,
		Password: cfg.Password,
	}
	switch {
	case cfg.OAuth2.AccessToken != "":
		creds.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.OAuth2.AccessToken,
			TokenType:   "Bearer",
		})
	case cfg.OAuth2.TokenEndpoint != "":
		creds.TokenSource = oauth2.ReuseTokenSource(nil, &passwordGrantTokenSource{
			config: &oauth2.Config{
				ClientID:     cfg.OAuth2.ClientID,
				ClientSecret: cfg.OAuth2.ClientSecret,
				Endpoint: oauth2.Endpoint{
					TokenURL:  cfg.OAuth2.TokenEndpoint,
					AuthStyle: oauth2.AuthStyleInHeader,
				},
			},
			username: jid.Local,
			password: cfg.Password,
		})
	}
	return creds, nil
}

// Only the password grant is implemented.
type passwordGrantTokenSource struct {
	config   *oauth2.Config
	username string
	password string
}

func (s *passwordGrantTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.config.PasswordCredentialsToken(context.Background(), s.username, s.password)
	if err != nil {
		return nil, errors.Wrap(err, "password grant failed")
	}
	return tok, nil
}
