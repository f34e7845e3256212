package main

import "github.com/zhanyun614531-alt/dingtalk-bot/cmd"

func main() {
	cmd.Execute()
}
