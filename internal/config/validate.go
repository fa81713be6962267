package config

import (
	"fmt"
	"strings"
)

// Validate checks the structural requirements a run cannot start without.
// Dispatcher options are deliberately not validated here; each constructor
// reports its own missing fields.
func (s *Settings) Validate() error {
	token := s.GoogleDrive.Token
	if token.ClientID == "" || token.ClientSecret == "" || token.RefreshToken == "" {
		return fmt.Errorf("google_drive.token needs client_id, client_secret and refresh_token")
	}

	if len(s.Pollers) == 0 {
		return fmt.Errorf("no pollers configured")
	}

	for i, p := range s.Pollers {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("poller-%d", i)
		}

		if len(p.Targets) == 0 {
			return fmt.Errorf("poller %s has no targets", name)
		}

		for _, target := range p.Targets {
			id, _, _ := strings.Cut(target, "#")
			if id == "" {
				return fmt.Errorf("poller %s: target %q has no item id", name, target)
			}
		}
	}

	return nil
}
