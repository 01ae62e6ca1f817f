package config

import "strings"

// envReplacer 把 "remote.batch_size" 映射到 OBJL_REMOTE_BATCH_SIZE
var envReplacer = strings.NewReplacer(".", "_", "-", "_")
