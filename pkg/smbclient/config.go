package smbclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/transport"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// EncryptionMode specifies the connection's encryption policy.
type EncryptionMode string

const (
	// EncryptionAllowed leaves the decision to the server (default).
	EncryptionAllowed EncryptionMode = "allowed"

	// EncryptionRequired fails the connection if the server cannot
	// encrypt; all traffic after session setup is encrypted.
	EncryptionRequired EncryptionMode = "required"

	// EncryptionDisabled never encrypts; servers requiring encryption
	// will reject the connection.
	EncryptionDisabled EncryptionMode = "disabled"
)

// IsRequired returns true if encryption is mandatory.
func (m EncryptionMode) IsRequired() bool { return m == EncryptionRequired }

// IsDisabled returns true if encryption is off.
func (m EncryptionMode) IsDisabled() bool { return m == EncryptionDisabled }

// AuthMethodsConfig selects the SSPs tried during session setup.
type AuthMethodsConfig struct {
	// NTLM enables NTLMv2 (default true).
	NTLM bool `mapstructure:"ntlm" yaml:"ntlm"`

	// Kerberos enables Kerberos via the system krb5 configuration.
	Kerberos bool `mapstructure:"kerberos" yaml:"kerberos"`
}

// MultiChannelConfig controls multichannel negotiation.
type MultiChannelConfig struct {
	// Enabled advertises the multichannel capability (default false).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// WorkerMode selects the scheduling flavor of the message worker.
type WorkerMode string

const (
	// WorkerParallel runs a dedicated receive goroutine and supports
	// concurrent requests (default).
	WorkerParallel WorkerMode = "parallel"

	// WorkerSingle runs send-then-receive on the caller with one request
	// in flight.
	WorkerSingle WorkerMode = "single"
)

// TransportKind selects the framing under the connection.
type TransportKind string

const (
	// TransportTCP is direct TCP (port 445, default).
	TransportTCP TransportKind = "tcp"

	// TransportNetBIOS is the NetBIOS session service (port 139).
	TransportNetBIOS TransportKind = "netbios"
)

// Config is the connection configuration surface.
type Config struct {
	// Port overrides the transport's default port when non-zero.
	Port uint16 `mapstructure:"port" yaml:"port"`

	// Timeout bounds each request/response exchange. Zero disables.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MinDialect and MaxDialect clamp negotiation; zero means unbounded
	// (2.0.2 .. 3.1.1).
	MinDialect types.Dialect `mapstructure:"min_dialect" yaml:"min_dialect"`
	MaxDialect types.Dialect `mapstructure:"max_dialect" yaml:"max_dialect"`

	// EncryptionMode is the encryption policy.
	EncryptionMode EncryptionMode `mapstructure:"encryption_mode" validate:"oneof=allowed required disabled" yaml:"encryption_mode"`

	// AllowUnsignedGuestAccess permits unsigned traffic on guest
	// sessions. Off by default: guest sessions fail without it.
	AllowUnsignedGuestAccess bool `mapstructure:"allow_unsigned_guest_access" yaml:"allow_unsigned_guest_access"`

	// CompressionEnabled negotiates the compression transform (3.1.1).
	CompressionEnabled bool `mapstructure:"compression_enabled" yaml:"compression_enabled"`

	// MultiChannel controls multichannel negotiation.
	MultiChannel MultiChannelConfig `mapstructure:"multichannel" yaml:"multichannel"`

	// ClientName is sent as the NetBIOS calling name. (The 3.1.1 netname
	// context carries the server name.)
	ClientName string `mapstructure:"client_name" yaml:"client_name"`

	// ClientGUID identifies the client in negotiation; generated when
	// empty.
	ClientGUID string `mapstructure:"client_guid" validate:"omitempty,uuid" yaml:"client_guid"`

	// SMB2OnlyNegotiate skips the SMB1 multi-protocol probe. Faster, but
	// only compatible with modern servers.
	SMB2OnlyNegotiate bool `mapstructure:"smb2_only_negotiate" yaml:"smb2_only_negotiate"`

	// AuthMethods selects the SSPs to try.
	AuthMethods AuthMethodsConfig `mapstructure:"auth_methods" yaml:"auth_methods"`

	// CreditsBacklog is the credit window the client asks the server to
	// keep granted.
	CreditsBacklog uint16 `mapstructure:"credits_backlog" validate:"gte=64" yaml:"credits_backlog"`

	// Worker selects the scheduling flavor.
	Worker WorkerMode `mapstructure:"worker" validate:"oneof=parallel single" yaml:"worker"`

	// Transport selects the framing.
	Transport TransportKind `mapstructure:"transport" validate:"oneof=tcp netbios" yaml:"transport"`

	// Logging configures the client's logger.
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// testDialer substitutes the transport in tests.
	testDialer transport.Dialer
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        10 * time.Second,
		EncryptionMode: EncryptionAllowed,
		AuthMethods:    AuthMethodsConfig{NTLM: true, Kerberos: false},
		CreditsBacklog: 128,
		Worker:         WorkerParallel,
		Transport:      TransportTCP,
	}
}

var validate = validator.New()

// normalize fills unset enum fields with their defaults so a sparse Config
// literal behaves like DefaultConfig with overrides.
func (c *Config) normalize() {
	if c.EncryptionMode == "" {
		c.EncryptionMode = EncryptionAllowed
	}
	if c.Worker == "" {
		c.Worker = WorkerParallel
	}
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.CreditsBacklog == 0 {
		c.CreditsBacklog = 128
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	c.normalize()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	minD, maxD := c.DialectRange()
	if minD > maxD {
		return fmt.Errorf("%w: min_dialect %s above max_dialect %s",
			ErrInvalidConfiguration, minD, maxD)
	}
	if !c.AuthMethods.NTLM && !c.AuthMethods.Kerberos {
		return fmt.Errorf("%w: no authentication method enabled", ErrInvalidConfiguration)
	}
	if c.EncryptionMode.IsRequired() && maxD < types.Dialect0300 {
		return fmt.Errorf("%w: encryption requires dialect 3.0 or newer", ErrInvalidConfiguration)
	}
	return nil
}

// DialectRange returns the effective negotiation bounds, clamped to
// 2.0.2 .. 3.1.1.
func (c *Config) DialectRange() (types.Dialect, types.Dialect) {
	minD := c.MinDialect
	if minD == 0 || minD < types.Dialect0202 {
		minD = types.Dialect0202
	}
	maxD := c.MaxDialect
	if maxD == 0 || maxD > types.Dialect0311 {
		maxD = types.Dialect0311
	}
	return minD, maxD
}

// Dialects lists the dialects offered in negotiation, ascending.
func (c *Config) Dialects() []types.Dialect {
	minD, maxD := c.DialectRange()
	var out []types.Dialect
	for _, d := range types.AllDialects {
		if d >= minD && d <= maxD {
			out = append(out, d)
		}
	}
	return out
}

// ClientGUIDBytes returns the configured GUID, generating one when unset.
func (c *Config) ClientGUIDBytes() [16]byte {
	var out [16]byte
	if c.ClientGUID != "" {
		if id, err := uuid.Parse(c.ClientGUID); err == nil {
			copy(out[:], id[:])
			return out
		}
	}
	id := uuid.New()
	copy(out[:], id[:])
	return out
}

// LoadConfig reads a YAML/TOML configuration file, layering environment
// variables (SMBCLIENT_*) over it and defaults under it.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	cfg := DefaultConfig()

	v.SetEnvPrefix("SMBCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfiguration, path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %v", ErrInvalidConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFromMap decodes a programmatic settings map over the defaults,
// using the same mapstructure tags as file loading.
func ConfigFromMap(settings map[string]any) (Config, error) {
	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result:  &cfg,
		TagName: "mapstructure",
	})
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := dec.Decode(settings); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %v", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
