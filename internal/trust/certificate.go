// Package trust makes sure the certificate that signed a package is trusted
// before the package is handed to the deployment service.
package trust

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/digitorus/pkcs7"
)

// SignatureEntry is the zip entry holding a package's signature.
const SignatureEntry = "AppxSignature.p7x"

// signatureMagic precedes the PKCS#7 blob inside SignatureEntry.
var signatureMagic = []byte("PKCX")

// maxSignatureBytes caps how much of the signature entry is read.
const maxSignatureBytes = 4 << 20

var (
	// ErrNoSignature means the package carries no embedded signature.
	ErrNoSignature = errors.New("package has no embedded signature")
	// ErrNoCertificate means a signature or file held no usable certificate.
	ErrNoCertificate = errors.New("no certificate found")
)

// ExtractCertificate returns the signer certificate embedded in a package.
func ExtractCertificate(packagePath string) (*x509.Certificate, error) {
	zr, err := zip.OpenReader(packagePath)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer zr.Close()

	var entry *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, SignatureEntry) {
			entry = f
			break
		}
	}
	if entry == nil {
		return nil, ErrNoSignature
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open signature: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSignatureBytes))
	if err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}

	return ParseSignature(data)
}

// ParseSignature decodes a package signature blob and returns its signer.
func ParseSignature(data []byte) (*x509.Certificate, error) {
	if !bytes.HasPrefix(data, signatureMagic) {
		return nil, fmt.Errorf("signature header: expected %q magic", signatureMagic)
	}

	p7, err := pkcs7.Parse(data[len(signatureMagic):])
	if err != nil {
		return nil, fmt.Errorf("parse pkcs7: %w", err)
	}

	if signer := p7.GetOnlySigner(); signer != nil {
		return signer, nil
	}
	if len(p7.Certificates) > 0 {
		return p7.Certificates[0], nil
	}
	return nil, ErrNoCertificate
}

// LoadCertificateFile reads a DER or PEM encoded certificate.
func LoadCertificateFile(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	return ParseCertificate(data)
}

// ParseCertificate decodes DER bytes, or the first CERTIFICATE block of PEM data.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrNoCertificate, block.Type)
		}
		data = block.Bytes
	}

	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

// Thumbprint is the upper-case hex SHA-1 of the certificate's DER encoding,
// the identity certificate stores use.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NormalizeThumbprint strips spaces and upper-cases a thumbprint.
func NormalizeThumbprint(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
