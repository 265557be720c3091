/* Package gorth is an embeddable Forth virtual machine.

A VM compiles input text into a threaded-code dictionary and executes it
over fixed-capacity stacks. All storage -- the data, return, and call
stacks, the dictionary arena, and the input and output buffers -- is
sized once at construction and never grows, which keeps the interpreter
friendly to small and embedded hosts.

Words are looked up in a linked dictionary that may fall through to an
immutable parent shared with other VMs (see Fork). Native words are
plain Go functions over the VM; a host context value of any type is
carried by the VM and available to them. An AsyncVM variant lets
selected built-in words block on a context-aware dispatcher, so a host
runtime can suspend a running line on I/O or timers.

The interpreter speaks a small but recognizable Forth: colon
definitions, if/else/then, do/loop, begin/until/while/repeat, variables,
constants, comments, and string output, plus the usual stack, memory,
and arithmetic words. See FullBuiltins for the word list.
*/
package gorth
