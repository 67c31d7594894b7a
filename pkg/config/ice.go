package config

import (
	"regexp"
	"strings"

	"github.com/pion/stun"
	"github.com/pkg/errors"
)

var (
	ErrInvalidICEURL          = errors.New("invalid ICE server url")
	ErrMissingTURNCredentials = errors.New("TURN server requires username and credential")
	ErrNoICEURLs              = errors.New("ICE server has no urls")
)

var iceURLPattern = regexp.MustCompile(`(?i)^(stun|turn|turns):[^\s]+(:\d+)?(\?transport=(tcp|udp))?$`)

type ICEConfig struct {
	Servers []ICEServerConfig `yaml:"servers,omitempty"`
}

type ICEServerConfig struct {
	URLs       []string `yaml:"urls,omitempty"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

func (c ICEConfig) Validate() error {
	for i, s := range c.Servers {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "ice server %d", i)
		}
	}
	return nil
}

// Validate checks every url against the accepted grammar. TURN urls additionally
// need credentials.
func (s ICEServerConfig) Validate() error {
	if len(s.URLs) == 0 {
		return ErrNoICEURLs
	}
	for _, raw := range s.URLs {
		uri, err := ParseICEURL(raw)
		if err != nil {
			return err
		}
		if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
			if s.Username == "" || s.Credential == "" {
				return errors.Wrap(ErrMissingTURNCredentials, raw)
			}
		}
	}
	return nil
}

func ParseICEURL(raw string) (*stun.URI, error) {
	raw = strings.TrimSpace(raw)
	if !iceURLPattern.MatchString(raw) {
		return nil, errors.Wrap(ErrInvalidICEURL, raw)
	}
	uri, err := stun.ParseURI(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidICEURL, "%s: %v", raw, err)
	}
	return uri, nil
}
