package config

import (
	"testing"

	"github.com/pion/stun"
	"github.com/stretchr/testify/require"
)

func TestParseICEURL(t *testing.T) {
	valid := []string{
		"stun:stun.l.google.com:19302",
		"STUN:stun.example.com",
		"turn:turn.example.com:3478?transport=udp",
		"turns:turn.example.com:5349?transport=tcp",
	}
	for _, raw := range valid {
		_, err := ParseICEURL(raw)
		require.NoError(t, err, raw)
	}

	invalid := []string{
		"",
		"http://example.com",
		"stun:",
		"turn:turn.example.com:3478?transport=sctp",
		"stun:host with space",
	}
	for _, raw := range invalid {
		_, err := ParseICEURL(raw)
		require.ErrorIs(t, err, ErrInvalidICEURL, raw)
	}
}

func TestICEServerValidate(t *testing.T) {
	uri, err := ParseICEURL("turn:turn.example.com:3478?transport=tcp")
	require.NoError(t, err)
	require.Equal(t, stun.SchemeTypeTURN, uri.Scheme)
	require.Equal(t, "turn.example.com", uri.Host)
	require.Equal(t, 3478, uri.Port)

	require.ErrorIs(t, ICEServerConfig{}.Validate(), ErrNoICEURLs)
	require.ErrorIs(t, ICEServerConfig{
		URLs:     []string{"turn:turn.example.com:3478"},
		Username: "user",
	}.Validate(), ErrMissingTURNCredentials)
	require.NoError(t, ICEServerConfig{
		URLs:       []string{"turn:turn.example.com:3478", "stun:stun.example.com"},
		Username:   "user",
		Credential: "pass",
	}.Validate())
	require.NoError(t, ICEServerConfig{URLs: []string{"stun:stun.example.com:3478"}}.Validate())
}
