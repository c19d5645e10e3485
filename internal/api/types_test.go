package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

func TestEnvelopeForMapsKnownKinds(t *testing.T) {
	cases := []struct {
		kind   nexuserr.Kind
		status int
	}{
		{nexuserr.KindSyntax, 400},
		{nexuserr.KindAuthentication, 401},
		{nexuserr.KindPermission, 403},
		{nexuserr.KindNotFound, 404},
		{nexuserr.KindTimeout, 408},
		{nexuserr.KindValidation, 400},
		{nexuserr.KindInternal, 500},
		{nexuserr.KindStorage, 500},
	}
	for _, c := range cases {
		err := nexuserr.New(c.kind, 0, "boom")
		env := EnvelopeFor(err)
		require.Equal(t, string(c.kind), env.Error.Type)
		require.Equal(t, c.status, env.Error.StatusCode)
		require.Equal(t, "boom", env.Error.Message)
	}
}

func TestEnvelopeForPlainErrorFallsBackToInternal(t *testing.T) {
	env := EnvelopeFor(errPlain{})
	require.Equal(t, string(nexuserr.KindInternal), env.Error.Type)
	require.Equal(t, 500, env.Error.StatusCode)
}

type errPlain struct{}

func (errPlain) Error() string { return "plain" }
