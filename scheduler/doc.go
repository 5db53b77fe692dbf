/*
Package scheduler publishes messages for future delivery.

Two interchangeable strategies implement Scheduler:

  - DeadLetter rides on broker TTL expiry: the message is published into a per-delay queue that
    dead-letters into the message type's exchange once the rounded delay has elapsed. It needs no
    process besides the broker and offers no cancellation.
  - External publishes a messages.ScheduleMe request that a separate scheduler service stores and
    replays when due. It also implements TimedScheduler: absolute wake times and cancellation keys.

Neither strategy runs timers of its own. Success means the broker accepted the publish, not that
the message was delivered.
*/
package scheduler
