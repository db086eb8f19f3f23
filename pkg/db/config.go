package db

// Config is the database half of the application configuration, mapped from
// the DATABASE_* environment variables. Type selects the dialect: postgres
// in production, sqlite for quick local runs, mysql supported for
// self-hosted installs.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	// Pool limits; lifetimes are in seconds.
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
