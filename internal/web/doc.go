// Package web serves the campus portal over HTTP.
//
// Every browser gets a device cookie; the [Registry] keeps one portalAuth.Store per
// device so all tabs of a browser share one session. Page routes are guarded by the
// middleware package: the route guard decides, this package only renders.
//
// # Routes
//
//	GET  /login, POST /login
//	GET  /signup, POST /signup
//	POST /logout
//	GET  /dashboard                       redirect to the user's own dashboard
//	GET  /dashboard/{student,teacher,committee}
//	GET  /settings/profile, POST /settings/profile
//	GET  /session                         JSON session snapshot
//	GET  /metrics                         Prometheus text exposition
//	GET  /healthz
package web
