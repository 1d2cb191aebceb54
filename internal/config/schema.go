package config

import (
	"fmt"
	"net/url"
)

// DataWarehouseSchema describes one upstream source: its name (matched
// against a relation's source_name) and the connection parameters used to
// reach it.
type DataWarehouseSchema struct {
	Name string `yaml:"name" json:"name"`
	DSN  DSN    `yaml:"dsn" json:"dsn"`

	// ReaderGroups and OwnerGroups are carried from the original schema
	// descriptor for schema-provisioning use cases that stay out of scope
	// for extraction (user/group administration).
	ReaderGroups []string `yaml:"reader_groups,omitempty" json:"reader_groups,omitempty" mapstructure:"reader_groups"`
	OwnerGroups  []string `yaml:"owner_groups,omitempty" json:"owner_groups,omitempty" mapstructure:"owner_groups"`
}

// DSN is the set of connection parameters for one upstream source, enough
// to build both a JDBC URL (for Sqoop) and a database/sql DSN string.
type DSN struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	SSL      bool   `yaml:"ssl" json:"ssl"`
}

// JDBCURL renders the Postgres JDBC connection string Sqoop expects.
func (d DSN) JDBCURL() string {
	return fmt.Sprintf("jdbc:postgresql://%s:%d/%s", d.Host, d.Port, d.Database)
}

// ConnString renders a database/sql compatible DSN for the postgres driver.
func (d DSN) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := u.Query()
	if d.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
