package model

import "time"

type User struct {
	Id         int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserId     string    `json:"user_id" gorm:"column:user_id;size:64;not null;uniqueIndex"`
	Username   string    `json:"username" gorm:"column:username;size:100;not null;uniqueIndex"`
	Password   string    `json:"-" gorm:"column:password;size:200;not null"`
	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (User) TableName() string {
	return "user"
}
