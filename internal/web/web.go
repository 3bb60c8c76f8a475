// Package web はサーバーサイドレンダリング用のHTMLテンプレートを提供します。
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates はバイナリに埋め込んだ全テンプレートをパースして返します。
// gin の SetHTMLTemplate に渡して使用します。
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}
