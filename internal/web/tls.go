// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package web

import (
	"crypto/tls"

	"github.com/samber/oops"
)

// loadTLS reads a PEM certificate chain and key. Both paths empty means
// plain HTTP and returns nil.
func loadTLS(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("tls needs both a certificate and a key file")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, oops.Code("WEB_TLS_INVALID").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
