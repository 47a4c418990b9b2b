package ircmsg

import "sort"

// BuildJoins packs channels (name -> key, empty key for none) into the
// fewest possible JOIN lines that each fit within maxLen bytes,
// channels with a key sorted first so a single split never separates a
// channel from its key. Adapted from the teacher's multi-upstream JOIN
// batching (ircutil.Join), generalized from *irc.Message values to raw
// wire lines.
func BuildJoins(channels map[string]string, maxLen int) []string {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		hasKeyI, hasKeyJ := channels[names[i]] != "", channels[names[j]] != ""
		if hasKeyI != hasKeyJ {
			return hasKeyI
		}
		return names[i] < names[j]
	})

	// Budget available for the "channels[,channels...] keys[,keys...]"
	// portion: "JOIN " plus the " :" trailing marker never applies here
	// (JOIN takes plain middle params), so reserve "JOIN " plus a space.
	budget := maxLen - len("JOIN ") - 1

	var lines []string
	var chanBuf, keyBuf string
	flush := func() {
		if chanBuf == "" {
			return
		}
		cmds := []string{"JOIN", chanBuf}
		if keyBuf != "" {
			cmds = append(cmds, keyBuf)
		}
		lines = append(lines, Build(cmds, "", false))
		chanBuf, keyBuf = "", ""
	}

	for _, name := range names {
		key := channels[name]
		extra := len(name)
		if chanBuf != "" {
			extra++ // comma
		}
		if key != "" {
			extra += len(key)
			if keyBuf != "" {
				extra++
			}
		}
		if chanBuf != "" && len(chanBuf)+len(keyBuf)+extra > budget {
			flush()
		}
		if chanBuf != "" {
			chanBuf += ","
		}
		chanBuf += name
		if key != "" {
			if keyBuf != "" {
				keyBuf += ","
			}
			keyBuf += key
		}
	}
	flush()
	return lines
}
