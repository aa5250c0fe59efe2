package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
)

// SMTPTransport delivers assembled messages over SMTP to whichever relay the
// selector picked. It opportunistically upgrades to STARTTLS and tolerates
// relays that reject AUTH, since delivery pools commonly mix authenticated
// submission hosts with IP-allowlisted ones.
type SMTPTransport struct {
	dialTimeout time.Duration
}

// NewSMTPTransport returns a transport with a 30 second dial timeout.
func NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{dialTimeout: 30 * time.Second}
}

// Send pushes one message through the given relay. The envelope sender is the
// message return path and the envelope recipient is the subscriber address;
// header From stays whatever the campaign composed.
func (t *SMTPTransport) Send(ctx context.Context, server domain.SMTPServer, msg *domain.EmailMessage) error {
	addr := server.Address()
	dialer := &net.Dialer{Timeout: t.dialTimeout}

	dialAndSetup := func(tryAuth bool) (*smtp.Client, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
		}
		c, err := smtp.NewClient(conn, server.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("SMTP client: %w", err)
		}
		if server.HELODomain != "" {
			if err := c.Hello(server.HELODomain); err != nil {
				c.Close()
				return nil, fmt.Errorf("HELO %s: %w", server.HELODomain, err)
			}
		}
		if ok, _ := c.Extension("STARTTLS"); ok {
			tlsCfg := &tls.Config{ServerName: server.Host, InsecureSkipVerify: true}
			if tlsErr := c.StartTLS(tlsCfg); tlsErr != nil {
				logger.Warn("STARTTLS failed, continuing without TLS", "server", server.ID, "error", tlsErr.Error())
			}
		}
		if tryAuth && server.Username != "" && server.Password != "" {
			if authErr := c.Auth(&plainAuth{user: server.Username, pass: server.Password}); authErr != nil {
				c.Close()
				return nil, authErr
			}
		}
		return c, nil
	}

	client, err := dialAndSetup(server.Username != "" && server.Password != "")
	if err != nil && server.Username != "" && server.Password != "" {
		logger.Warn("AUTH rejected, retrying without credentials", "server", server.ID, "error", err.Error())
		client, err = dialAndSetup(false)
	}
	if err != nil {
		return &domain.TransportError{Server: server.ID, Op: "setup", Err: err}
	}
	defer client.Close()

	if err := client.Mail(msg.ReturnPath); err != nil {
		return &domain.TransportError{Server: server.ID, Op: "MAIL FROM", Err: err}
	}
	if err := client.Rcpt(msg.Email); err != nil {
		return &domain.TransportError{Server: server.ID, Op: "RCPT TO", Err: err}
	}
	w, err := client.Data()
	if err != nil {
		return &domain.TransportError{Server: server.ID, Op: "DATA", Err: err}
	}
	if _, err := w.Write(msg.Data); err != nil {
		return &domain.TransportError{Server: server.ID, Op: "DATA write", Err: err}
	}
	if err := w.Close(); err != nil {
		return &domain.TransportError{Server: server.ID, Op: "DATA close", Err: err}
	}
	if err := client.Quit(); err != nil {
		return &domain.TransportError{Server: server.ID, Op: "QUIT", Err: err}
	}
	return nil
}

// plainAuth implements smtp.Auth without the TLS requirement stdlib's
// PlainAuth enforces. Relays on private delivery networks often take PLAIN
// on the cleartext submission port.
type plainAuth struct {
	user, pass string
}

func (a *plainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	resp := []byte("\x00" + a.user + "\x00" + a.pass)
	return "PLAIN", resp, nil
}

func (a *plainAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	return nil, nil
}
