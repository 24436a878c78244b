package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/security"
)

// generateTestCert creates a self-signed certificate usable as server, client and CA
func generateTestCert(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   cn,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

// writePair writes cert and key files and returns their paths
func writePair(t *testing.T, dir, name, cn string) (certFile, keyFile string) {
	t.Helper()
	certPEM, keyPEM := generateTestCert(t, cn)
	certFile = filepath.Join(dir, name+"-cert.pem")
	keyFile = filepath.Join(dir, name+"-key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	return certFile, keyFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, "server", "localhost")

	tests := []struct {
		name        string
		cfg         security.ServerTLSConfig
		wantNil     bool
		wantErr     bool
		wantVersion uint16
	}{
		{
			name:    "disabled returns nil",
			cfg:     security.ServerTLSConfig{Enabled: false},
			wantNil: true,
		},
		{
			name:        "default min version",
			cfg:         security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
			wantVersion: tls.VersionTLS12,
		},
		{
			name:        "tls 1.3",
			cfg:         security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"},
			wantVersion: tls.VersionTLS13,
		},
		{
			name:    "missing cert",
			cfg:     security.ServerTLSConfig{Enabled: true, CertFile: filepath.Join(dir, "nope.pem"), KeyFile: keyFile},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadServerTLSConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cfg)
				return
			}
			require.NotNil(t, cfg)
			assert.Len(t, cfg.Certificates, 1)
			assert.Equal(t, tt.wantVersion, cfg.MinVersion)
		})
	}
}

func TestLoadServerTLSConfig_MTLSModes(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, "server", "localhost")
	caFile, _ := writePair(t, dir, "ca", "device-ca")

	required, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: certFile, KeyFile: keyFile,
		MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{caFile}, RequireClientCert: true},
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, required.ClientAuth)
	assert.NotNil(t, required.ClientCAs)
	assert.Nil(t, required.VerifyPeerCertificate)

	optional, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: certFile, KeyFile: keyFile,
		MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{caFile}, AllowedClientCNs: []string{"bed-12"}},
	})
	require.NoError(t, err)
	assert.Equal(t, tls.VerifyClientCertIfGiven, optional.ClientAuth)
	assert.NotNil(t, optional.VerifyPeerCertificate)

	_, err = LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: certFile, KeyFile: keyFile,
		MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{filepath.Join(dir, "missing.pem")}},
	})
	require.Error(t, err)
}

func TestLoadClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	caFile, _ := writePair(t, dir, "ca", "upload-ca")
	badFile := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(badFile, []byte("not pem"), 0644))

	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{CAFiles: []string{caFile}, MinVersion: "1.3"})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Empty(t, cfg.Certificates)

	_, err = LoadClientTLSConfig(security.ClientTLSConfig{CAFiles: []string{badFile}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse CA certificate")

	_, err = LoadClientTLSConfig(security.ClientTLSConfig{
		MTLS: security.ClientMTLSConfig{Enabled: true, CertFile: caFile, KeyFile: filepath.Join(dir, "missing-key.pem")},
	})
	require.Error(t, err)
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS12), ParseTLSVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), ParseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS13), ParseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), ParseTLSVersion("1.0"))

	assert.True(t, ValidTLSVersion(""))
	assert.True(t, ValidTLSVersion("1.3"))
	assert.False(t, ValidTLSVersion("1.1"))
}

func TestVerifyAllowedClientCN(t *testing.T) {
	leaf := &x509.Certificate{Subject: pkix.Name{CommonName: "bed-12"}}

	assert.NoError(t, verifyAllowedClientCN([][]*x509.Certificate{{leaf}}, []string{"bed-11", "bed-12"}))
	assert.Error(t, verifyAllowedClientCN([][]*x509.Certificate{{leaf}}, []string{"bed-1"}))
	assert.Error(t, verifyAllowedClientCN(nil, []string{"bed-12"}))
}

func TestMTLSHandshake(t *testing.T) {
	dir := t.TempDir()
	serverCert, serverKey := writePair(t, dir, "server", "localhost")
	clientCert, clientKey := writePair(t, dir, "client", "bed-12")

	serverTLS, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled:  true,
		CertFile: serverCert,
		KeyFile:  serverKey,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{clientCert},
			RequireClientCert: true,
			AllowedClientCNs:  []string{"bed-12"},
		},
	})
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.TLS.PeerCertificates[0].Subject.CommonName)
	}))
	server.TLS = serverTLS
	server.StartTLS()
	defer server.Close()

	clientTLS, err := LoadClientTLSConfig(security.ClientTLSConfig{
		CAFiles: []string{serverCert},
		MTLS:    security.ClientMTLSConfig{Enabled: true, CertFile: clientCert, KeyFile: clientKey},
	})
	require.NoError(t, err)

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientTLS}, Timeout: 5 * time.Second}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "bed-12", string(body))

	// Without a client certificate the handshake is refused
	anon, err := LoadClientTLSConfig(security.ClientTLSConfig{CAFiles: []string{serverCert}})
	require.NoError(t, err)
	anonClient := &http.Client{Transport: &http.Transport{TLSClientConfig: anon}, Timeout: 5 * time.Second}
	_, err = anonClient.Get(server.URL)
	assert.Error(t, err)
}
