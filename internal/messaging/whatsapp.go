package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

// Constants for the WhatsApp client.
const (
	// DefaultWhatsAppDBPath is the default SQLite path for whatsmeow session state.
	DefaultWhatsAppDBPath = "/var/lib/dispatcher/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// WhatsAppSender sends WhatsApp messages. The concrete client and test mocks
// both satisfy it.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// WhatsAppOpts holds configuration for the whatsmeow-backed client.
type WhatsAppOpts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // print a numeric login code instead of a QR code
}

// WhatsAppOption configures the WhatsApp client.
type WhatsAppOption func(*WhatsAppOpts)

// WithWhatsAppDBDSN sets the whatsmeow session database connection string.
func WithWhatsAppDBDSN(dsn string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the given path instead of stdout.
func WithQRCodeOutput(path string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.QRPath = path }
}

// WithNumericCode prints a numeric pairing code instead of rendering a QR code.
func WithNumericCode() WhatsAppOption {
	return func(o *WhatsAppOpts) { o.NumericCode = true }
}

// WhatsAppClient wraps the whatsmeow client.
type WhatsAppClient struct {
	waClient *whatsmeow.Client
}

// NewWhatsAppClient builds a whatsmeow client, logging in via QR code or
// pairing code when no stored session exists.
func NewWhatsAppClient(opts ...WhatsAppOption) (*WhatsAppClient, error) {
	var cfg WhatsAppOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = os.Getenv("WHATSAPP_DB_DSN")
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = DefaultWhatsAppDBPath
		slog.Debug("WhatsAppClient: no session DB DSN provided, using default", "path", cfg.DBDSN)
	}

	dbDriver := "sqlite3"
	if store.DetectDSNType(cfg.DBDSN) == store.DSNTypePostgres {
		dbDriver = "postgres"
	} else if !strings.Contains(cfg.DBDSN, "foreign_keys") {
		// whatsmeow strongly recommends foreign keys on SQLite.
		slog.Warn("WhatsAppClient: SQLite session DB does not enable foreign keys",
			"dsn_example", "file:"+cfg.DBDSN+"?_foreign_keys=on")
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, cfg.DBDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("WhatsAppClient: failed to initialize session store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("WhatsAppClient: failed to get device from session store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp session store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	if waClient.Store.ID == nil {
		if err := loginWithQR(waClient, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("WhatsAppClient: already logged in, connecting")
		if err := waClient.Connect(); err != nil {
			slog.Error("WhatsAppClient: failed to connect", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsAppClient connected")
	return &WhatsAppClient{waClient: waClient}, nil
}

// loginWithQR runs the interactive login flow, writing the QR code or pairing
// code to stdout or the configured file.
func loginWithQR(waClient *whatsmeow.Client, cfg WhatsAppOpts) error {
	slog.Info("WhatsAppClient: login required, starting QR flow")
	qrChan, _ := waClient.GetQRChannel(context.Background())
	if err := waClient.Connect(); err != nil {
		slog.Error("WhatsAppClient: failed to connect during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			slog.Error("WhatsAppClient: failed to create QR file", "error", err)
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			if cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		} else {
			slog.Debug("WhatsAppClient: login event", "event", evt.Event)
		}
	}
	return nil
}

// SendMessage sends a WhatsApp text message to the given recipient.
func (c *WhatsAppClient) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	slog.Debug("WhatsAppClient.SendMessage: sending", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("WhatsAppClient.SendMessage: send failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// Raw exposes the underlying whatsmeow client for event handler registration.
func (c *WhatsAppClient) Raw() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the connection to the WhatsApp servers.
func (c *WhatsAppClient) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}
