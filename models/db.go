package models

import (
	"database/sql"
	"log"
	"time"

	"VideoRitz-server/config"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *sql.DB
var GormDB *gorm.DB

const createProjectTable = `CREATE TABLE IF NOT EXISTS project (
    id              VARCHAR(64) PRIMARY KEY,
    theme           TEXT,
    format          VARCHAR(16),
    shot_count      INT DEFAULT 0,
    status          VARCHAR(32),
    final_video_url TEXT,
    created_at      DATETIME,
    updated_at      DATETIME
)`

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	dsn := config.AppConfig.MySQL.DSN
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}

	DB = db
	GormDB, err = gorm.Open(mysql.New(mysql.Config{
		Conn: DB,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("GORM 初始化失败: %v", err)
	}

	log.Println("数据库连接成功 (Native SQL + GORM)")

	if _, err := DB.Exec(createProjectTable); err != nil {
		log.Printf("执行建表语句失败: %v", err)
	}
}

// Project CRUD
func CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := DB.Exec(
		`INSERT INTO project (id, theme, format, shot_count, status, final_video_url, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Theme, p.Format, p.ShotCount, p.Status, p.FinalVideoUrl, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func GetProjectByID(id string) (Project, error) {
	var p Project
	row := DB.QueryRow(`SELECT id, theme, format, shot_count, status, final_video_url, created_at, updated_at FROM project WHERE id = ?`, id)
	var createdAt, updatedAt time.Time
	if err := row.Scan(&p.ID, &p.Theme, &p.Format, &p.ShotCount, &p.Status, &p.FinalVideoUrl, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func ListProjects() ([]Project, error) {
	rows, err := DB.Query(`SELECT id, theme, format, shot_count, status, final_video_url, created_at, updated_at FROM project ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Project
	for rows.Next() {
		var p Project
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&p.ID, &p.Theme, &p.Format, &p.ShotCount, &p.Status, &p.FinalVideoUrl, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = createdAt
		p.UpdatedAt = updatedAt
		res = append(res, p)
	}
	return res, nil
}

// UpdateProjectStatus 更新目录库的粗粒度状态标签（finalVideoUrl 可选）
func UpdateProjectStatus(id, status, finalVideoUrl string) error {
	if finalVideoUrl != "" {
		_, err := DB.Exec(`UPDATE project SET status = ?, final_video_url = ?, updated_at = ? WHERE id = ?`, status, finalVideoUrl, time.Now(), id)
		return err
	}
	_, err := DB.Exec(`UPDATE project SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	return err
}

func DeleteProjectByID(id string) error {
	_, err := DB.Exec(`DELETE FROM project WHERE id = ?`, id)
	return err
}
