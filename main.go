package main

import "github.com/killallgit/echonote-api/cmd"

// @title           EchoNote API
// @version         1.0.0
// @description     Meeting transcription with speaker diarization and summaries
// @contact.name    API Support
// @contact.url     https://github.com/killallgit/echonote-api
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey  UserID
// @in                          header
// @name                        X-User-ID
// @description                 Caller identity set by the gateway in front of the API
func main() {
	cmd.Execute()
}
