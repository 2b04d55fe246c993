package auth

import (
	"fmt"
	"os"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/marmos91/smbclient/internal/logger"
)

// KerberosProvider implements the Kerberos mechanism using gokrb5: an
// AP-REQ carrying a service ticket for cifs/<host>. The exchange usually
// completes in a single leg (mutual authentication responses from the
// server are accepted and ignored).
type KerberosProvider struct {
	creds      Credentials
	spn        string
	client     *client.Client
	sessionKey []byte
}

// NewKerberosProvider logs the principal in against the KDC from krb5.conf
// and prepares the mechanism for the given server host.
func NewKerberosProvider(creds Credentials, host string) (*KerberosProvider, error) {
	cfgPath := creds.KerberosConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("KRB5_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "/etc/krb5.conf"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("kerberos: load config %s: %w", cfgPath, err)
	}

	realm := creds.Domain
	if realm == "" {
		realm = cfg.LibDefaults.DefaultRealm
	}

	cl := client.NewWithPassword(creds.Username, realm, creds.Password, cfg,
		client.DisablePAFXFAST(true))
	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("kerberos: login: %w", err)
	}

	spn := creds.SPN
	if spn == "" {
		spn = "cifs/" + host
	}
	logger.Debug("kerberos provider ready",
		logger.KeyAuthMech, "kerberos", "spn", spn, "realm", realm)

	return &KerberosProvider{creds: creds, spn: spn, client: cl}, nil
}

// OID implements Mechanism.
func (p *KerberosProvider) OID() []int { return OIDKerberosV5 }

// SessionKey implements Mechanism.
func (p *KerberosProvider) SessionKey() []byte { return p.sessionKey }

// InitialToken obtains a service ticket and builds the AP-REQ token.
func (p *KerberosProvider) InitialToken() ([]byte, error) {
	ticket, key, err := p.client.GetServiceTicket(p.spn)
	if err != nil {
		return nil, fmt.Errorf("kerberos: service ticket for %s: %w", p.spn, err)
	}

	token, err := spnego.NewKRB5TokenAPREQ(p.client, ticket, key,
		[]int{gssapi.ContextFlagInteg, gssapi.ContextFlagConf}, nil)
	if err != nil {
		return nil, fmt.Errorf("kerberos: build AP-REQ: %w", err)
	}
	out, err := token.Marshal()
	if err != nil {
		return nil, fmt.Errorf("kerberos: marshal AP-REQ: %w", err)
	}

	// The SMB session key is the service ticket session key, clamped to
	// the 16 bytes SMB key derivation consumes.
	sk := make([]byte, 16)
	copy(sk, key.KeyValue)
	p.sessionKey = sk
	return out, nil
}

// AcceptChallenge consumes the server's AP-REP (mutual auth) leg, if any.
// Kerberos completes after the first client token.
func (p *KerberosProvider) AcceptChallenge(token []byte) ([]byte, bool, error) {
	return nil, true, nil
}

// Destroy releases the client's sessions and cached tickets.
func (p *KerberosProvider) Destroy() {
	if p.client != nil {
		p.client.Destroy()
	}
}
