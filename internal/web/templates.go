package web

import (
	"html/template"
	"io"

	portalAuth "github.com/MrEthical07/portalAuth"
)

const layoutTemplate = `{{define "layout"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}} · Campus Portal</title></head>
<body>
<header>
  <a href="/">Campus Portal</a>
  {{with .User}}<span>{{.DisplayName}} ({{.Role}})</span>
  <a href="/settings/profile">Profile</a>
  <form method="post" action="/logout" style="display:inline"><button type="submit">Sign out</button></form>
  {{else}}<a href="/login">Sign in</a> <a href="/signup">Create account</a>{{end}}
</header>
{{with .Error}}<p role="alert" class="error">{{.}}</p>{{end}}
{{with .Notice}}<p class="notice">{{.}}</p>{{end}}
<main>{{template "content" .}}</main>
</body></html>{{end}}`

const loginTemplate = `{{define "content"}}<h1>Sign in</h1>
<form method="post" action="/login">
  <input type="hidden" name="next" value="{{.Next}}">
  <label>Email <input type="email" name="email" value="{{index .Form "email"}}" required></label>
  <label>Password <input type="password" name="password" required></label>
  <label>I am a
    <select name="role">{{$sel := index .Form "role"}}
      {{range .Roles}}<option value="{{.}}"{{if eq (print .) $sel}} selected{{end}}>{{.}}</option>{{end}}
    </select>
  </label>
  <button type="submit">Sign in</button>
</form>{{end}}`

const signupTemplate = `{{define "content"}}<h1>Create account</h1>
<form method="post" action="/signup">
  <label>Name <input type="text" name="display_name" value="{{index .Form "display_name"}}" required></label>
  <label>Email <input type="email" name="email" value="{{index .Form "email"}}" required></label>
  <label>Password <input type="password" name="password" minlength="8" required></label>
  <label>Role
    <select name="role">{{$sel := index .Form "role"}}
      {{range .Roles}}<option value="{{.}}"{{if eq (print .) $sel}} selected{{end}}>{{.}}</option>{{end}}
    </select>
  </label>
  <button type="submit">Create account</button>
</form>{{end}}`

const dashboardTemplate = `{{define "content"}}<h1>{{.Title}}</h1>
{{with .User}}<p>Welcome, {{.DisplayName}}.</p>
{{if eq .Role "student"}}<ul><li>My courses</li><li>Assignments</li><li>Attendance</li></ul>
{{else if eq .Role "teacher"}}<ul><li>Classes</li><li>Grading queue</li><li>Office hours</li></ul>
{{else if eq .Role "committee"}}<ul><li>Events</li><li>Announcements</li><li>Approvals</li></ul>{{end}}
{{end}}{{end}}`

const profileTemplate = `{{define "content"}}<h1>Profile</h1>
{{with .User}}<p>{{.Email}} · {{.Role}}</p>{{end}}
<form method="post" action="/settings/profile">
  <label>Name <input type="text" name="display_name" value="{{index .Form "display_name"}}"></label>
  <label>Department <input type="text" name="department" value="{{index .Form "department"}}"></label>
  <label>Phone <input type="tel" name="phone" value="{{index .Form "phone"}}"></label>
  <label>Bio <textarea name="bio">{{index .Form "bio"}}</textarea></label>
  <label>Profile image URL <input type="url" name="profile_image_url" value="{{index .Form "profile_image_url"}}"></label>
  <label>Website <input type="url" name="website" value="{{index .Form "website"}}"></label>
  <label>LinkedIn <input type="text" name="linkedin" value="{{index .Form "linkedin"}}"></label>
  <label>GitHub <input type="text" name="github" value="{{index .Form "github"}}"></label>
  <label>Twitter <input type="text" name="twitter" value="{{index .Form "twitter"}}"></label>
  <button type="submit">Save</button>
</form>{{end}}`

type pageData struct {
	Title  string
	User   *portalAuth.UserProfile
	Error  string
	Notice string
	Next   string
	Roles  []portalAuth.Role
	Form   map[string]string
}

type pages struct {
	login, signup, dashboard, profile *template.Template
}

func parsePages() pages {
	page := func(content string) *template.Template {
		t := template.Must(template.New("layout").Parse(layoutTemplate))
		return template.Must(t.Parse(content))
	}
	return pages{
		login:     page(loginTemplate),
		signup:    page(signupTemplate),
		dashboard: page(dashboardTemplate),
		profile:   page(profileTemplate),
	}
}

func render(w io.Writer, t *template.Template, data pageData) error {
	if data.Form == nil {
		data.Form = map[string]string{}
	}
	if data.Roles == nil {
		data.Roles = portalAuth.Roles()
	}
	return t.ExecuteTemplate(w, "layout", data)
}
