package db

import (
	"crewcomms/src/config"
	"crewcomms/src/models"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// GetDb opens the shared postgres handle on first use. Returns nil when DATABASE_HOST
// is unset; audit and persisted schedules are optional.
func GetDb() *gorm.DB {
	if db != nil {
		return db
	}
	conf, err := config.Load()
	if err != nil || conf.DatabaseDSN == "" {
		return nil
	}
	_db, err := Open(conf.DatabaseDSN)
	if err != nil {
		log.Printf("Error connecting to database: %s\n", err.Error())
		return nil
	}
	db = _db
	return _db
}

func Open(dsn string) (*gorm.DB, error) {
	_db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := _db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	return _db, nil
}

func Migrate(d *gorm.DB) error {
	return d.AutoMigrate(&models.TrailLog{}, &models.JobTask{})
}

func NewDB(newdb *gorm.DB) {
	db = newdb
}
