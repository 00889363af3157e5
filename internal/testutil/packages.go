package testutil

import (
	"archive/zip"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
)

// Signer is a throwaway code signing identity.
type Signer struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// NewSigner creates a self-signed code signing certificate for subject.
func NewSigner(t *testing.T, subject string) *Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("generate serial: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: subject},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return &Signer{Cert: cert, Key: key}
}

// WriteCertificate writes the signer certificate to dir/name, PEM encoded when
// asPEM is set and DER otherwise. It returns the file path.
func (s *Signer) WriteCertificate(t *testing.T, dir, name string, asPEM bool) string {
	t.Helper()

	data := s.Cert.Raw
	if asPEM {
		data = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.Cert.Raw})
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write certificate: %v", err)
	}
	return path
}

// SignatureBlob returns a package signature entry: the PKCX magic followed by
// a PKCS#7 SignedData signed by s.
func (s *Signer) SignatureBlob(t *testing.T) []byte {
	t.Helper()

	sd, err := pkcs7.NewSignedData([]byte("AppxBlockMap digest"))
	if err != nil {
		t.Fatalf("new signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(s.Cert, s.Key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("add signer: %v", err)
	}
	der, err := sd.Finish()
	if err != nil {
		t.Fatalf("finish signed data: %v", err)
	}
	return append([]byte("PKCX"), der...)
}

// WritePackage writes a minimal package container at path. When signer is
// non-nil the container carries an AppxSignature.p7x entry.
func WritePackage(t *testing.T, path string, signer *Signer) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create package dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entries := map[string][]byte{
		"AppxManifest.xml": []byte(`<?xml version="1.0" encoding="utf-8"?><Package/>`),
		"AppxBlockMap.xml": []byte(`<?xml version="1.0" encoding="utf-8"?><BlockMap/>`),
	}
	if signer != nil {
		entries["AppxSignature.p7x"] = signer.SignatureBlob(t)
	}
	for _, name := range []string{"AppxManifest.xml", "AppxBlockMap.xml", "AppxSignature.p7x"} {
		data, ok := entries[name]
		if !ok {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close package: %v", err)
	}
	return path
}
