package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/phrazzld/nudge-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashGenerator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		stdin string
	}{
		{name: "key as argument", args: []string{"--cost", "4", "s3cret-worker"}},
		{name: "key on stdin", args: []string{"--cost", "4"}, stdin: "s3cret-worker\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			cmd := newCommand()
			cmd.SetArgs(tt.args)
			cmd.SetIn(strings.NewReader(tt.stdin))
			cmd.SetOut(&out)

			require.NoError(t, cmd.Execute())

			verifier, err := auth.NewBcryptKeyVerifier(strings.TrimSpace(out.String()))
			require.NoError(t, err)
			assert.NoError(t, verifier.Verify("s3cret-worker"))
		})
	}

	t.Run("empty stdin", func(t *testing.T) {
		t.Parallel()
		cmd := newCommand()
		cmd.SetArgs([]string{})
		cmd.SetIn(strings.NewReader(""))
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute())
	})
}
