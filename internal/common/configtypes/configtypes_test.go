package configtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitListen(t *testing.T) {
	tests := []struct {
		name     string
		listen   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "port with colon", listen: ":10080", wantPort: 10080},
		{name: "bare port", listen: "10080", wantPort: 10080},
		{name: "host and port", listen: "127.0.0.1:9090", wantHost: "127.0.0.1", wantPort: 9090},
		{name: "ipv6", listen: "[::1]:8080", wantHost: "::1", wantPort: 8080},
		{name: "empty", listen: "", wantErr: true},
		{name: "garbage", listen: "abc", wantErr: true},
		{name: "bad port", listen: "localhost:http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := SplitListen(tt.listen)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestValidateListen(t *testing.T) {
	assert.NoError(t, ValidateListen(":1"))
	assert.NoError(t, ValidateListen("0.0.0.0:65535"))
	assert.Error(t, ValidateListen(":0"))
	assert.Error(t, ValidateListen(":65536"))
	assert.Error(t, ValidateListen(""))
}

func TestNormalizeListen(t *testing.T) {
	got, err := NormalizeListen("10080")
	require.NoError(t, err)
	assert.Equal(t, ":10080", got)

	got, err = NormalizeListen("localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", got)

	_, err = NormalizeListen("")
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.True(t, IsValidLogLevel("warn"))
	assert.False(t, IsValidLogLevel("trace"))
	assert.True(t, IsValidLogFormat("text"))
	assert.False(t, IsValidLogFormat("xml"))
	assert.True(t, IsValidCompression(""))
	assert.True(t, IsValidCompression("lz4"))
	assert.False(t, IsValidCompression("gzip"))
}
