/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/kedevs/blogapi/cmd"

func main() {
	cmd.Execute()
}
