package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	html "github.com/gofiber/template/html/v2"

	"chinasource/internal/domain"
)

//go:embed templates static
var files embed.FS

func sub(dir string) http.FileSystem {
	f, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return http.FS(f)
}

// Static serves web/static.
func Static() http.FileSystem { return sub("static") }

// Engine loads the page templates together with the helpers they use.
func Engine() *html.Engine {
	engine := html.NewFileSystem(sub("templates"), ".html")
	for name, fn := range Funcs() {
		engine.AddFunc(name, fn)
	}
	return engine
}

func Funcs() map[string]interface{} {
	return map[string]interface{}{
		"statusLabel":  domain.StatusLabel,
		"serviceLabel": func(s domain.ServiceType) string { return s.Label() },
		"num":          num,
		"int":          integer,
		"money":        func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
		"add":          func(a, b int) int { return a + b },
		"date":         func(t time.Time) string { return t.Local().Format("02.01.2006 15:04") },
	}
}

func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func integer(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(*v)
}
