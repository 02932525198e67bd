package shell

// manPages holds the one-line usage summary `man` prints for each
// built-in; commands not listed here fall back to a generic message.
var manPages = map[string]string{
	"cat":       "cat [FILE]...: concatenate files (or stdin) to stdout\n",
	"ls":        "ls [PATH]...: list directory entries\n",
	"echo":      "echo [ARG]...: print arguments to stdout\n",
	"sleep":     "sleep N: block the calling process for N scheduler ticks\n",
	"busy":      "busy: loop forever holding the CPU\n",
	"ps":        "ps: list every live process and its state\n",
	"kill":      "kill [-term|-stop|-cont] PID: send a signal to PID\n",
	"touch":     "touch FILE...: create FILE if absent, else update its mtime\n",
	"mv":        "mv SRC DST: rename SRC to DST\n",
	"cp":        "cp SRC DST: copy SRC to DST\n",
	"rm":        "rm FILE...: remove FILE\n",
	"chmod":     "chmod MODE PATH: set PATH's permission bits (octal)\n",
	"cd":        "cd [DIR]: change the shell's working directory\n",
	"mkdir":     "mkdir DIR...: create DIR\n",
	"rmdir":     "rmdir DIR...: remove an empty DIR\n",
	"pwd":       "pwd: print the working directory\n",
	"ln":        "ln [-s] TARGET PATH: create a link named PATH\n",
	"jobs":      "jobs: list background jobs\n",
	"bg":        "bg [%JOB]: continue a stopped job in the background\n",
	"fg":        "fg [%JOB]: bring a job to the foreground and wait for it\n",
	"logout":    "logout: exit the shell\n",
	"nice_pid":  "nice_pid PRIORITY PID: change PID's scheduling priority\n",
	"mount":     "mount FILE: mount FILE as the active filesystem\n",
	"umount":    "umount: unmount the active filesystem\n",
	"mkfs":      "mkfs FILE FAT-BLOCKS BLOCK-SIZE-CONFIG: format FILE as a new filesystem\n",
	"zombify":   "zombify: spawn a child that exits immediately, without reaping it\n",
	"orphanify": "orphanify: spawn a long-sleeping child, then exit\n",
	"hang":      "hang: block indefinitely\n",
	"nohang":    "nohang: loop forever without ever blocking\n",
	"recur":     "recur [DEPTH]: spawn a sleeping descendant chain DEPTH deep\n",
}
