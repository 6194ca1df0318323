// Package models, uygulamanın domain modellerini (veri yapıları) tanımlar.
//
// Model nedir?
// Veritabanındaki bir tablonun Go karşılığıdır.
// Aynı zamanda WebSocket/HTTP üzerinden gelen/giden verilerin şeklini de belirler.
//
// Go'da `json:"nickname"` gibi tag'ler, struct field'larının JSON'a
// nasıl serialize/deserialize edileceğini belirler.
package models

import "time"

// User, bir kullanıcıyı temsil eder.
//
// Kullanıcı kaydı profil alt sistemine aittir (OAuth girişinde oluşturulur).
// Chat çekirdeği sadece ID ve IsBlocked alanlarını okur; Nickname preview
// listesinde karşı tarafı göstermek için kullanılır.
type User struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	IsBlocked bool      `json:"-"` // Engelli kullanıcı bilgisi client'a sızdırılmaz
	CreatedAt time.Time `json:"created_at"`
}

// UserInfo, preview satırında karşı tarafı temsil eden hafif görünüm.
type UserInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}
