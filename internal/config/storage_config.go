package config

import (
	"os"
	"path/filepath"
)

const (
	StorageDriverFile   = "file"
	StorageDriverRedis  = "redis"
	StorageDriverMemory = "memory"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetStoragePath() string
	GetStoragePassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

type Storage struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	Passphrase    string `mapstructure:"passphrase"`
	RedisAddr     string `mapstructure:"redisaddr"`
	RedisPassword string `mapstructure:"redispassword"`
	RedisDB       int    `mapstructure:"redisdb"`
	RedisPrefix   string `mapstructure:"redisprefix"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageDriver() string {
	return s.Driver
}

func (s Storage) GetStoragePath() string {
	return s.Path
}

func (s Storage) GetStoragePassphrase() string {
	return s.Passphrase
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Storage) GetRedisDB() int {
	return s.RedisDB
}

func (s Storage) GetRedisKeyPrefix() string {
	return s.RedisPrefix
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "flashybank.store")
	}
	return filepath.Join(dir, "flashybank", "secure.store")
}
