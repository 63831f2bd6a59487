package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Kind selects the active storage backend.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote-file-server"
	KindObject Kind = "object-storage"
)

// Object storage providers.
const (
	ProviderAzure = "azure"
	ProviderGCS   = "gcs"
	ProviderS3    = "s3"
)

// Config selects a backend and holds the connection parameters for each kind.
// Only the section matching Kind is validated.
type Config struct {
	Kind   Kind         `toml:"kind"`
	Local  LocalConfig  `toml:"local"`
	Remote RemoteConfig `toml:"remote"`
	Object ObjectConfig `toml:"object"`
}

// LocalConfig holds local filesystem parameters.
type LocalConfig struct {
	BasePath string `toml:"base_path"`
}

// RemoteConfig holds SFTP file server parameters.
type RemoteConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	PrivateKey      string `toml:"private_key"`
	Passphrase      string `toml:"passphrase"`
	KnownHosts      string `toml:"known_hosts"`
	InsecureHostKey bool   `toml:"insecure_host_key"`
	BasePath        string `toml:"base_path"`
	Timeout         string `toml:"timeout"`
}

// Addr returns the host:port dial address.
func (c *RemoteConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *RemoteConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// ObjectConfig holds object storage parameters. Azure accepts either a
// connection string or an account URL authenticated with the default
// credential chain; GCS uses application default credentials unless a
// credentials file is given. S3 takes a region and a static access key
// pair, or the default AWS credential chain when the pair is empty.
// Endpoint points S3 at a compatible server and switches to path-style
// addressing.
type ObjectConfig struct {
	Provider         string `toml:"provider"`
	Bucket           string `toml:"bucket"`
	Prefix           string `toml:"prefix"`
	ConnectionString string `toml:"connection_string"`
	AccountURL       string `toml:"account_url"`
	CredentialsFile  string `toml:"credentials_file"`
	Region           string `toml:"region"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	Endpoint         string `toml:"endpoint"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Kind             string
	LocalBasePath    string
	RemoteHost       string
	RemotePort       string
	RemoteUsername   string
	RemotePassword   string
	RemotePrivateKey string
	RemoteBasePath   string
	RemoteTimeout    string
	ObjectProvider   string
	ObjectBucket     string
	ObjectConnString string
	ObjectAccountURL string
	ObjectRegion     string
	ObjectAccessKey  string
	ObjectSecretKey  string
	ObjectEndpoint   string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Kind != "" {
		c.Kind = overlay.Kind
	}
	if overlay.Local.BasePath != "" {
		c.Local.BasePath = overlay.Local.BasePath
	}

	r, o := &c.Remote, &overlay.Remote
	if o.Host != "" {
		r.Host = o.Host
	}
	if o.Port != 0 {
		r.Port = o.Port
	}
	if o.Username != "" {
		r.Username = o.Username
	}
	if o.Password != "" {
		r.Password = o.Password
	}
	if o.PrivateKey != "" {
		r.PrivateKey = o.PrivateKey
	}
	if o.Passphrase != "" {
		r.Passphrase = o.Passphrase
	}
	if o.KnownHosts != "" {
		r.KnownHosts = o.KnownHosts
	}
	if o.InsecureHostKey {
		r.InsecureHostKey = true
	}
	if o.BasePath != "" {
		r.BasePath = o.BasePath
	}
	if o.Timeout != "" {
		r.Timeout = o.Timeout
	}

	ob, oo := &c.Object, &overlay.Object
	if oo.Provider != "" {
		ob.Provider = oo.Provider
	}
	if oo.Bucket != "" {
		ob.Bucket = oo.Bucket
	}
	if oo.Prefix != "" {
		ob.Prefix = oo.Prefix
	}
	if oo.ConnectionString != "" {
		ob.ConnectionString = oo.ConnectionString
	}
	if oo.AccountURL != "" {
		ob.AccountURL = oo.AccountURL
	}
	if oo.CredentialsFile != "" {
		ob.CredentialsFile = oo.CredentialsFile
	}
	if oo.Region != "" {
		ob.Region = oo.Region
	}
	if oo.AccessKey != "" {
		ob.AccessKey = oo.AccessKey
	}
	if oo.SecretKey != "" {
		ob.SecretKey = oo.SecretKey
	}
	if oo.Endpoint != "" {
		ob.Endpoint = oo.Endpoint
	}
}

func (c *Config) loadDefaults() {
	if c.Kind == "" {
		c.Kind = KindLocal
	}
	if c.Local.BasePath == "" {
		c.Local.BasePath = "data/uploads"
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = 22
	}
	if c.Remote.BasePath == "" {
		c.Remote.BasePath = "/data/uploads"
	}
	if c.Remote.Timeout == "" {
		c.Remote.Timeout = "30s"
	}
	if c.Object.Provider == "" {
		c.Object.Provider = ProviderAzure
	}
}

func (c *Config) loadEnv(env *Env) {
	setString := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if env.Kind != "" {
		if v := os.Getenv(env.Kind); v != "" {
			c.Kind = Kind(strings.ToLower(v))
		}
	}
	setString(env.LocalBasePath, &c.Local.BasePath)
	setString(env.RemoteHost, &c.Remote.Host)
	if env.RemotePort != "" {
		if v := os.Getenv(env.RemotePort); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				c.Remote.Port = port
			}
		}
	}
	setString(env.RemoteUsername, &c.Remote.Username)
	setString(env.RemotePassword, &c.Remote.Password)
	setString(env.RemotePrivateKey, &c.Remote.PrivateKey)
	setString(env.RemoteBasePath, &c.Remote.BasePath)
	setString(env.RemoteTimeout, &c.Remote.Timeout)
	setString(env.ObjectProvider, &c.Object.Provider)
	setString(env.ObjectBucket, &c.Object.Bucket)
	setString(env.ObjectConnString, &c.Object.ConnectionString)
	setString(env.ObjectAccountURL, &c.Object.AccountURL)
	setString(env.ObjectRegion, &c.Object.Region)
	setString(env.ObjectAccessKey, &c.Object.AccessKey)
	setString(env.ObjectSecretKey, &c.Object.SecretKey)
	setString(env.ObjectEndpoint, &c.Object.Endpoint)
}

func (c *Config) validate() error {
	switch c.Kind {
	case KindLocal:
		if c.Local.BasePath == "" {
			return fmt.Errorf("local.base_path required")
		}
	case KindRemote:
		return c.Remote.validate()
	case KindObject:
		return c.Object.validate()
	default:
		return fmt.Errorf("unsupported kind: %q", c.Kind)
	}
	return nil
}

func (c *RemoteConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("remote.host required")
	}
	if c.Username == "" {
		return fmt.Errorf("remote.username required")
	}
	if c.Password == "" && c.PrivateKey == "" {
		return fmt.Errorf("remote.password or remote.private_key required")
	}
	if c.KnownHosts == "" && !c.InsecureHostKey {
		return fmt.Errorf("remote.known_hosts required unless remote.insecure_host_key is set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid remote.port: %d", c.Port)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid remote.timeout: %w", err)
	}
	return nil
}

func (c *ObjectConfig) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("object.bucket required")
	}
	switch c.Provider {
	case ProviderAzure:
		if c.ConnectionString == "" && c.AccountURL == "" {
			return fmt.Errorf("object.connection_string or object.account_url required")
		}
	case ProviderGCS:
	case ProviderS3:
		if c.Region == "" {
			return fmt.Errorf("object.region required for s3")
		}
		if (c.AccessKey == "") != (c.SecretKey == "") {
			return fmt.Errorf("object.access_key and object.secret_key must be set together")
		}
	default:
		return fmt.Errorf("unsupported object.provider: %q", c.Provider)
	}
	return nil
}
