package web

import (
	"html/template"
	"io"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
	<meta http-equiv="content-type" content="text/html; charset=utf-8">
	<title>{{template "title" .}}</title>
</head>
<body>
{{range .Flashes}}	<p><i>{{.}}</i></p>
{{end}}{{template "body" .}}
</body>
</html>
{{end}}`

var viewSources = map[string]string{
	"login": `{{define "title"}}Login{{end}}
{{define "body"}}<form action="/login" method="post">
	{{.CSRFField}}
	<label>Username <input type="text" placeholder="Enter Username" name="username"></label>
	<label>Password <input type="password" placeholder="Enter Password" name="password"></label>
	<button type="submit">Login</button>
</form>{{end}}`,

	"dashboard": `{{define "title"}}Admin dashboard{{end}}
{{define "body"}}<p>Welcome {{.Data}}!</p>
<p>Available actions:</p>
<ol>
	<li><a href="/admin/password">Change password</a></li>
	<li>
		<form name="logoutForm" action="/admin/logout" method="post">
			{{.CSRFField}}
			<input type="submit" value="Logout">
		</form>
	</li>
</ol>{{end}}`,

	"change-password": `{{define "title"}}Change Password{{end}}
{{define "body"}}<form action="/admin/password" method="post">
	{{.CSRFField}}
	<label>Current password <input type="password" placeholder="Current Password" name="current_password"></label>
	<br>
	<label>New password <input type="password" placeholder="New Password" name="new_password"></label>
	<br>
	<label>Confirm new password <input type="password" placeholder="Type the new password again" name="new_password_check"></label>
	<br>
	<button type="submit">Change password</button>
</form>
<p><a href="/admin/dashboard">&lt;- Back</a></p>{{end}}`,
}

type viewData struct {
	CSRFField template.HTML
	Flashes   []any
	Data      any
}

type views map[string]*template.Template

func parseViews() (views, error) {
	v := make(views, len(viewSources))
	for name, src := range viewSources {
		tmpl, err := template.New(name).Parse(layout)
		if err != nil {
			return nil, err
		}

		tmpl, err = tmpl.Parse(src)
		if err != nil {
			return nil, err
		}

		v[name] = tmpl
	}

	return v, nil
}

func (v views) render(w io.Writer, name string, data viewData) error {
	return v[name].ExecuteTemplate(w, "layout", data)
}
