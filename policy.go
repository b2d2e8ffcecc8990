package elemer

import (
	"context"
	"fmt"
	"strings"
)

// LinkPolicy decides when the session opens and closes the physical port.
type LinkPolicy uint8

const (
	// PolicyPersistent opens the port at Connect and keeps it open.
	PolicyPersistent LinkPolicy = iota
	// PolicyPerTransaction opens the port before each exchange and closes
	// it afterwards.
	PolicyPerTransaction
)

func (p LinkPolicy) String() string {
	switch p {
	case PolicyPersistent:
		return "persistent"
	case PolicyPerTransaction:
		return "per-transaction"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParseLinkPolicy parses the String form of a policy.
func ParseLinkPolicy(s string) (LinkPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "persistent", "":
		return PolicyPersistent, nil
	case "per-transaction", "transaction":
		return PolicyPerTransaction, nil
	}
	return PolicyPersistent, fmt.Errorf("elemer: unknown link policy %q", s)
}

// UnmarshalText lets configuration files name a policy.
func (p *LinkPolicy) UnmarshalText(text []byte) error {
	v, err := ParseLinkPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// hold brackets one exchange with the instrument. Under PolicyPerTransaction
// it opens the port, waits for the confirmation and the settle delay, and
// the returned release closes the port again. Under PolicyPersistent both
// are no-ops.
func (s *Session) hold(ctx context.Context) (release func(), err error) {
	if s.cfg.policy != PolicyPerTransaction {
		return func() {}, nil
	}
	if err := s.openLink(ctx); err != nil {
		return func() {}, err
	}
	return func() {
		if err := s.closeLink(context.Background(), s.cfg.closeWait); err != nil {
			s.logger.Warn("close after exchange", "error", err)
		}
	}, nil
}
