package cquictest

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/gordian-engine/cancelable/cquic"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"
)

const loopbackALPN = "cancelable-test"

// UniStreamPair is a unidirectional QUIC stream
// between two connections over the loopback interface.
type UniStreamPair struct {
	// The sending side.
	// Writes are visible to the receiver once the first write is flushed.
	Send io.WriteCloser

	accept func(context.Context) (cquic.ReceiveStream, error)
}

// NewUniStreamPair starts a QUIC listener on 127.0.0.1,
// dials it, and opens a unidirectional stream from the dialer.
// The listener and both connections are closed through t.Cleanup.
func NewUniStreamPair(t *testing.T, ctx context.Context) *UniStreamPair {
	t.Helper()

	serverConf := selfSignedTLSConfig(t)

	ln, err := quic.ListenAddr("127.0.0.1:0", serverConf, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ln.Close(); err != nil {
			t.Logf("Error closing QUIC listener: %v", err)
		}
	})

	type acceptResult struct {
		accept func(context.Context) (cquic.ReceiveStream, error)
		err    error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			acceptCh <- acceptResult{err: err}
			return
		}
		t.Cleanup(func() {
			_ = conn.CloseWithError(0, "")
		})

		acceptCh <- acceptResult{
			accept: func(ctx context.Context) (cquic.ReceiveStream, error) {
				s, err := conn.AcceptUniStream(ctx)
				if err != nil {
					return nil, err
				}
				return s, nil
			},
		}
	}()

	clientConf := &tls.Config{
		// The server certificate is self-signed and generated per test.
		InsecureSkipVerify: true,
		NextProtos:         []string{loopbackALPN},
	}
	client, err := quic.DialAddr(ctx, ln.Addr().String(), clientConf, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.CloseWithError(0, "")
	})

	var res acceptResult
	select {
	case res = <-acceptCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out accepting loopback connection")
	}
	require.NoError(t, res.err)

	send, err := client.OpenUniStreamSync(ctx)
	require.NoError(t, err)

	return &UniStreamPair{
		Send:   send,
		accept: res.accept,
	}
}

// Accept returns the receiving side of the stream.
// The peer only learns of the stream after data is written to it,
// so write to Send before calling Accept.
func (p *UniStreamPair) Accept(t *testing.T, ctx context.Context) cquic.ReceiveStream {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := p.accept(ctx)
	require.NoError(t, err)
	return s
}

// selfSignedTLSConfig returns a server TLS config
// with a freshly generated ed25519 certificate.
func selfSignedTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),

		Subject:   pkix.Name{CommonName: "localhost"},
		NotBefore: time.Now().Add(-15 * time.Second),
		NotAfter:  time.Now().Add(time.Hour),

		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
	}

	der, err := x509.CreateCertificate(nil, template, template, pub, priv)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{der},
				PrivateKey:  priv,

				Leaf: cert,
			},
		},
		NextProtos: []string{loopbackALPN},
	}
}
