package client

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jmwhea/matchup/common"

	log "github.com/sirupsen/logrus"
)

// RunClient is the main method for running the client code
func RunClient() {
	log.Info("Client ready for commands. Type \"help\" for a list.")
	scanner := bufio.NewScanner(os.Stdin)
	rest := createRestClient("")

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			rest.disconnect()
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if len(text) == 0 {
			continue
		}

		exploded := strings.Split(text, " ")
		switch exploded[0] {
		case "help":
			printHelp()
		case "connect":
			// connect [URL] [userid]
			if len(exploded) > 2 {
				rest = createRestClient(exploded[1])
				if rest.connect(exploded[2]) {
					printSetupHints(rest)
				}
			} else {
				log.Error("Usage: \"connect [URL] [userid]\"")
			}
		case "disconnect":
			rest.disconnect()
		case "add-game":
			if len(exploded) > 1 {
				name := strings.Join(exploded[1:], " ")
				if rest.addGame(name) {
					fmt.Printf("Added %q to your games.\n", name)
				}
			} else {
				log.Error("Usage: \"add-game [name]\"")
			}
		case "remove-game":
			if len(exploded) > 1 {
				name := strings.Join(exploded[1:], " ")
				if rest.removeGame(name) {
					fmt.Printf("Removed %q from your games.\n", name)
				} else {
					fmt.Printf("%q is not in your games.\n", name)
				}
			} else {
				log.Error("Usage: \"remove-game [name]\"")
			}
		case "games":
			if profile, ok := rest.profile(); ok {
				if len(profile.Games) == 0 {
					fmt.Println("You have no games saved.")
				}
				for _, name := range profile.Games {
					fmt.Println(name)
				}
			}
		case "all-games":
			if names, ok := rest.allGames(); ok {
				for _, name := range names {
					fmt.Println(name)
				}
			}
		case "set-timezone":
			if len(exploded) > 1 {
				if rest.setTimezone(exploded[1]) {
					fmt.Printf("Set %q as your timezone.\n", exploded[1])
				}
			} else {
				log.Error("Usage: \"set-timezone [IANA name, e.g. America/New_York]\"")
			}
		case "set-availability":
			// set-availability [day] [start] [end], or just [day] to clear
			switch len(exploded) {
			case 2:
				if rest.setAvailability(exploded[1], "", "") {
					fmt.Printf("Cleared your availability on %s.\n", exploded[1])
				}
			case 4:
				if rest.setAvailability(exploded[1], exploded[2], exploded[3]) {
					fmt.Printf("Set your availability on %s from %s to %s.\n", exploded[1], exploded[2], exploded[3])
				}
			default:
				log.Error("Usage: \"set-availability [day] [start] [end]\" or \"set-availability [day]\" to clear")
			}
		case "add-availability":
			if len(exploded) == 4 {
				if rest.addAvailability(exploded[1], exploded[2], exploded[3]) {
					fmt.Printf("Added availability on %s from %s to %s.\n", exploded[1], exploded[2], exploded[3])
				}
			} else {
				log.Error("Usage: \"add-availability [day] [start] [end]\"")
			}
		case "clear-availability":
			if len(exploded) == 2 {
				if rest.clearAvailability(exploded[1]) {
					fmt.Printf("Cleared your availability on %s.\n", exploded[1])
				}
			} else {
				log.Error("Usage: \"clear-availability [day]\"")
			}
		case "availability":
			if profile, ok := rest.profile(); ok {
				fmt.Println(formatAvailability(profile))
			}
		case "ready":
			gameFilter := ""
			if len(exploded) > 1 {
				gameFilter = strings.Join(exploded[1:], " ")
			}
			if players, ok := rest.ready(gameFilter); ok {
				printReadyPlayers(players, gameFilter)
			}
		case "watch":
			rest.watch()
		case "quit", "exit":
			rest.disconnect()
			return
		default:
			log.WithField("command", exploded[0]).Error("Unknown command, type \"help\" for a list")
		}
	}
}

func printHelp() {
	fmt.Println(`connect [URL] [userid]              log into a server
disconnect                          log out
add-game [name]                     add a game to your list
remove-game [name]                  remove a game from your list
games                               list your games
all-games                           list every game known to the server
set-timezone [IANA name]            set your home timezone
set-availability [day] [start] [end]   replace a day's availability (omit times to clear)
add-availability [day] [start] [end]   add another interval to a day
clear-availability [day]            clear a day
availability                        show your weekly availability
ready [game]                        find available players sharing your games
watch                               stream profile changes from the server
quit                                exit`)
}

// formatAvailability renders the weekly schedule as one line per day, with
// the timezone first.
func formatAvailability(profile common.ProfileResponse) string {
	lines := make([]string, 0, len(common.DayKeys)+1)

	if profile.Timezone != "" {
		lines = append(lines, "timezone: "+profile.Timezone)
	} else {
		lines = append(lines, "timezone: not set")
	}

	for _, day := range common.DayKeys {
		intervals := profile.Availability[day]
		if len(intervals) == 0 {
			lines = append(lines, day+": none")
			continue
		}

		spans := make([]string, 0, len(intervals))
		for _, iv := range intervals {
			spans = append(spans, iv.Start+"-"+iv.End)
		}
		lines = append(lines, day+": "+strings.Join(spans, ", "))
	}

	return strings.Join(lines, "\n")
}

func printReadyPlayers(players []common.ReadyPlayer, gameFilter string) {
	if len(players) == 0 {
		if gameFilter != "" {
			fmt.Printf("No one is available right now for %q.\n", gameFilter)
		} else {
			fmt.Println("No one with matching games is available right now.")
		}
		return
	}

	fmt.Println("Players available now:")
	for _, player := range players {
		fmt.Printf("  user %d - %s\n", player.User, strings.Join(player.Games, ", "))
	}
}

// printSetupHints tells a freshly connected user which parts of their profile
// are still empty.
func printSetupHints(rest *restClient) {
	profile, ok := rest.profile()
	if !ok {
		return
	}

	if len(profile.Games) == 0 {
		fmt.Println("Add games with \"add-game\" so others can find you.")
	}
	if profile.Timezone == "" {
		fmt.Println("Set your timezone with \"set-timezone\" to show up in searches.")
		return
	}

	for _, intervals := range profile.Availability {
		if len(intervals) > 0 {
			return
		}
	}
	fmt.Println("Set your availability with \"set-availability\" to show up in searches.")
}
