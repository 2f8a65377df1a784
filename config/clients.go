package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/ssobridge/domain"
	"gopkg.in/yaml.v3"
)

// clientsFile is the layout of idp.clients_file.
type clientsFile struct {
	Clients []domain.ClientRegistration `yaml:"clients"`
}

// LoadClients reads client registrations from a YAML file. Unknown keys are
// rejected so a misspelt field cannot silently widen or drop a restriction.
func LoadClients(path string) ([]domain.ClientRegistration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clients file: %w", err)
	}
	defer f.Close()

	return DecodeClients(f)
}

// DecodeClients is LoadClients over an arbitrary reader.
func DecodeClients(r io.Reader) ([]domain.ClientRegistration, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file clientsFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: clients file: %v", ErrInvalidConfig, err)
	}

	return file.Clients, nil
}
