// Package backup turns an installed app directory back into a signed .appx
// package using the Windows SDK packaging tools.
package backup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ManifestFile is the app manifest inside an installed app directory.
const ManifestFile = "AppxManifest.xml"

// Identity is the Identity element of an app manifest.
type Identity struct {
	Name                  string
	Publisher             string
	Version               string
	ProcessorArchitecture string
}

// ReadManifest reads the Identity of the app installed in appDir.
func ReadManifest(appDir string) (Identity, error) {
	f, err := os.Open(filepath.Join(appDir, ManifestFile))
	if err != nil {
		return Identity{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return parseIdentity(f)
}

func parseIdentity(r io.Reader) (Identity, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Identity{}, fmt.Errorf("manifest has no Identity element")
			}
			return Identity{}, fmt.Errorf("parse manifest: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Identity" {
			continue
		}

		var id Identity
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "Name":
				id.Name = attr.Value
			case "Publisher":
				id.Publisher = attr.Value
			case "Version":
				id.Version = attr.Value
			case "ProcessorArchitecture":
				id.ProcessorArchitecture = attr.Value
			}
		}
		if id.Publisher == "" {
			return Identity{}, fmt.Errorf("manifest Identity has no Publisher")
		}
		return id, nil
	}
}
