package cas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackChannelLogoutMessageRoundTrip(t *testing.T) {
	message := GenerateBackChannelLogoutMessage("ST-123-abc")

	logoutRequest, err := parseLogoutRequest([]byte(message))
	require.NoError(t, err)
	assert.Equal(t, "ST-123-abc", logoutRequest.SessionIndex)
}

func TestFrontChannelLogoutMessageRoundTrip(t *testing.T) {
	message, err := GenerateFrontChannelLogoutMessage("ST-123-abc")
	require.NoError(t, err)

	logoutRequest, err := parseLogoutRequest([]byte(message))
	require.NoError(t, err)
	assert.Equal(t, "ST-123-abc", logoutRequest.SessionIndex)
}

func TestParseLogoutRequestIgnoresUnknownStructure(t *testing.T) {
	message := `<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
		ID="LR-1" Version="2.0" IssueInstant="2024-01-01T00:00:00Z" Destination="https://app.example.com/" Reason="expired">
		<saml:NameID xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion">someone</saml:NameID>
		<samlp:Extensions><x:Custom xmlns:x="urn:example">opaque</x:Custom></samlp:Extensions>
		<samlp:SessionIndex>ST-456</samlp:SessionIndex>
	</samlp:LogoutRequest>`

	logoutRequest, err := parseLogoutRequest([]byte(message))
	require.NoError(t, err)
	assert.Equal(t, "ST-456", logoutRequest.SessionIndex)
}

func TestParseLogoutRequestWithoutSessionIndex(t *testing.T) {
	message := `<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="LR-1" Version="2.0">
		<saml:NameID xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion">someone</saml:NameID>
	</samlp:LogoutRequest>`

	_, err := parseLogoutRequest([]byte(message))
	assert.ErrorIs(t, err, ErrMalformedLogoutMessage)
}

func TestParseLogoutRequestGarbage(t *testing.T) {
	_, err := parseLogoutRequest([]byte("not xml, not base64!!"))
	assert.ErrorIs(t, err, ErrMalformedLogoutMessage)
}
