package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "FINTRACK_"

const (
	GatewayHTTP     = "http"
	GatewayPostgres = "postgres"
	GatewayMemory   = "memory"
)

type Application struct {
	Listen    string    `koanf:"listen"`
	Gateway   Gateway   `koanf:"gateway"`
	Assistant Assistant `koanf:"assistant"`
	Database  Database  `koanf:"db"`
	Notify    Notify    `koanf:"notify"`
	Export    Export    `koanf:"export"`
}

type Gateway struct {
	Kind     string        `koanf:"kind"`
	BaseURL  string        `koanf:"baseurl"`
	Timeout  time.Duration `koanf:"timeout"`
	PageSize int           `koanf:"pagesize"`
	Auth     GatewayAuth   `koanf:"auth"`
}

type GatewayAuth struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	TokenURL     string `koanf:"tokenurl"`
}

// Assistant is the OCR and chat service used next to a Postgres-backed ledger.
type Assistant struct {
	BaseURL string `koanf:"baseurl"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
	// MaxConns and MinConns size the connection pool.
	MaxConns int32 `koanf:"maxconns"`
	MinConns int32 `koanf:"minconns"`
}

type Notify struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

type Export struct {
	SpreadsheetId   string `koanf:"spreadsheetid"`
	SheetName       string `koanf:"sheetname"`
	CredentialsFile string `koanf:"credentialsfile"`
}

func defaults() Application {
	return Application{
		Listen: ":8181",
		Gateway: Gateway{
			Kind:     GatewayHTTP,
			BaseURL:  "http://localhost:8000",
			Timeout:  30 * time.Second,
			PageSize: 100,
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "fintrack",
			Pass:     "",
			Name:     "fintrack",
			Schema:   "fintrack",
			MaxConns: 10,
			MinConns: 1,
		},
		Notify: Notify{
			Exchange: "fintrack.mutations",
		},
		Export: Export{
			SheetName: "Expenses",
		},
	}
}

// Load layers struct defaults, the YAML file at path and FINTRACK_ environment
// variables, later sources winning. A missing file is not an error.
func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
