package primaryqueue

import "time"

// VisibilityTimeoutSec must exceed ConsumerTimeout so a message is never
// redelivered while its consumer still runs.
const VisibilityTimeoutSec = 60

const ConsumerTimeout = time.Second * 45
