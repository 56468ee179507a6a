package mevshare

import (
	"errors"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidNetwork = errors.New("invalid network specification")

// Network names one MEV-Share deployment: the Bundle API endpoint and the
// Event API endpoint.
type Network struct {
	Name      string `yaml:"name"`
	APIURL    string `yaml:"api_url"`
	StreamURL string `yaml:"stream_url"`
}

var (
	NetworkMainnet = Network{
		Name:      "mainnet",
		APIURL:    "https://relay.flashbots.net",
		StreamURL: "https://mev-share.flashbots.net",
	}
	NetworkSepolia = Network{
		Name:      "sepolia",
		APIURL:    "https://relay-sepolia.flashbots.net",
		StreamURL: "https://mev-share-sepolia.flashbots.net",
	}
)

// SupportedNetworks are the built-in deployments, by name.
var SupportedNetworks = map[string]Network{
	NetworkMainnet.Name: NetworkMainnet,
	NetworkSepolia.Name: NetworkSepolia,
}

type networksConfig struct {
	Networks []Network `yaml:"networks"`
}

// LoadNetworksConfig parses additional network deployments from a yaml file.
// Built-in networks are included in the result; file entries with the same
// name override them.
func LoadNetworksConfig(file string) (map[string]Network, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var config networksConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	networks := make(map[string]Network, len(SupportedNetworks)+len(config.Networks))
	for name, network := range SupportedNetworks {
		networks[name] = network
	}
	for _, network := range config.Networks {
		if err := validateNetwork(&network); err != nil {
			return nil, err
		}
		networks[network.Name] = network
	}
	return networks, nil
}

func validateNetwork(network *Network) error {
	if network.Name == "" {
		return ErrInvalidNetwork
	}
	for _, endpoint := range []string{network.APIURL, network.StreamURL} {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ErrInvalidNetwork
		}
	}
	return nil
}
