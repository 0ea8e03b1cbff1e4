package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title secscan API
// @version 0.1
// @description Runs security scanners against server-local targets and serves their results.
// @contact.name secscan maintainers
// @contact.url https://github.com/raysh454/secscan
// @BasePath /
