package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"statesync/internal/pkg/checksum"
	"statesync/internal/pkg/client"
	"statesync/internal/pkg/session"
	"statesync/internal/pkg/validate"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PeerPrefix prefixes the presence record of every client.
const PeerPrefix = "peer"

// Peer is the presence record a client publishes while connected.
type Peer struct {
	Name   string    `json:"name"`
	Joined time.Time `json:"joined"`
}

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp joins the shared state, publishes a presence record and the
// key=value pairs given as arguments, and reports what it sees until stopped.
type ClientApp struct {
	Address        string        `validate:"required"`
	Name           string        `validate:"omitempty,max=64"`
	FlushInterval  time.Duration `validate:"gt=0"`
	DrainInterval  time.Duration `validate:"gte=0"`
	UpdateInterval time.Duration `validate:"gte=0"`
	CloseTimeout   time.Duration `validate:"gt=0"`
	ReportInterval time.Duration `validate:"gt=0"`
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{
		FlushInterval:  session.DefaultFlushInterval,
		DrainInterval:  session.DefaultDrainInterval,
		UpdateInterval: session.DefaultUpdateInterval,
		CloseTimeout:   session.DefaultCloseTimeout,
		ReportInterval: 5 * time.Second,
	}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// ParseAssignments parses key=value arguments. Values are read as JSON and
// fall back to plain strings.
func ParseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("argument %q is not key=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func (app *ClientApp) Run(ctx context.Context, args []string) error {
	assignments, err := ParseAssignments(args)
	if err != nil {
		return errors.Wrap(err, "parse arguments failed")
	}
	c, err := client.NewClient(client.WithAddress(app.Address))
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	if err := c.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect client failed")
	}
	defer c.Close()

	s, err := session.New(
		session.WithFlushInterval(app.FlushInterval),
		session.WithDrainInterval(app.DrainInterval),
		session.WithUpdateInterval(app.UpdateInterval),
		session.WithCloseTimeout(app.CloseTimeout),
	)
	if err != nil {
		return errors.Wrap(err, "create session failed")
	}
	if err := s.Open(ctx, c); err != nil {
		return errors.Wrap(err, "open session failed")
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.WithError(err).Warn("close session failed")
		}
	}()

	peers := session.NewResourceCollection(s, PeerPrefix, session.JSONCodec[Peer]())
	defer peers.Close()
	name := app.Name
	if name == "" {
		name = fmt.Sprintf("client-%s", s.Token()[:8])
	}
	if err := peers.Put(s.Token(), Peer{Name: name, Joined: time.Now().UTC()}); err != nil {
		return errors.Wrap(err, "publish presence failed")
	}
	for k, v := range assignments {
		if err := s.Set(k, v); err != nil {
			return errors.Wrapf(err, "set %q failed", k)
		}
	}

	ticker := time.NewTicker(app.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			app.report(s, peers)
		}
	}
}

func (app *ClientApp) report(s *session.Session, peers *session.ResourceCollection[Peer]) {
	peers.Refresh()
	names := make([]string, 0)
	for _, p := range peers.Values() {
		names = append(names, p.Name)
	}
	fields := logrus.Fields{
		"token":    s.Token(),
		"keys":     len(s.Keys()),
		"peers":    names,
		"awaiting": s.AwaitingConfirmation(),
		"since":    s.SinceLastConfirmation().Round(time.Millisecond),
	}
	if sum, err := checksum.Sum(s.Snapshot()); err == nil {
		fields["checksum"] = sum
	}
	if err := s.Err(); err != nil {
		fields["fault"] = err.Error()
	}
	logger.WithFields(fields).Info("state report")
}
