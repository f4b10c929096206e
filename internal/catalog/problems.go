package catalog

import "encoding/json"

func raw(s string) json.RawMessage { return json.RawMessage(s) }

var builtin = []Problem{
	{
		ID:          "two-sum",
		Title:       "Two Sum",
		Description: "Given an array of integers, return indices of the two numbers that add up to a specific target. You may assume that each input would have exactly one solution, and you may not use the same element twice.",
		Difficulty:  DifficultyEasy,
		StarterCode: "function twoSum(nums: number[], target: number): number[] {\n  // Your code here\n};",
		TestCases: []TestCase{
			{Input: raw(`{"nums":[2,7,11,15],"target":9}`), Expected: raw(`[0,1]`)},
			{Input: raw(`{"nums":[3,2,4],"target":6}`), Expected: raw(`[1,2]`)},
			{Input: raw(`{"nums":[3,3],"target":6}`), Expected: raw(`[0,1]`)},
		},
		Examples: []Example{
			{Input: raw(`{"nums":[2,7,11,15],"target":9}`), Output: raw(`[0,1]`), Explanation: "Because nums[0] + nums[1] == 9, we return [0, 1]."},
			{Input: raw(`{"nums":[3,2,4],"target":6}`), Output: raw(`[1,2]`), Explanation: "Because nums[1] + nums[2] == 6, we return [1, 2]."},
		},
	},
	{
		ID:          "reverse-string",
		Title:       "Reverse String",
		Description: "Write a function that reverses a string. The input string is given as an array of characters. You must do this by modifying the input array in-place with O(1) extra memory.",
		Difficulty:  DifficultyEasy,
		StarterCode: "function reverseString(s: string[]): void {\n  // Your code here\n};",
		TestCases: []TestCase{
			{Input: raw(`["h","e","l","l","o"]`), Expected: raw(`["o","l","l","e","h"]`)},
			{Input: raw(`["H","a","n","n","a","h"]`), Expected: raw(`["h","a","n","n","a","H"]`)},
		},
		Examples: []Example{
			{Input: raw(`["h","e","l","l","o"]`), Output: raw(`["o","l","l","e","h"]`)},
			{Input: raw(`["H","a","n","n","a","h"]`), Output: raw(`["h","a","n","n","a","H"]`)},
		},
	},
	{
		ID:          "palindrome-number",
		Title:       "Palindrome Number",
		Description: "Given an integer x, return true if x is a palindrome, and false otherwise.",
		Difficulty:  DifficultyEasy,
		StarterCode: "function isPalindrome(x: number): boolean {\n  // Your code here\n};",
		TestCases: []TestCase{
			{Input: raw(`121`), Expected: raw(`true`)},
			{Input: raw(`-121`), Expected: raw(`false`)},
			{Input: raw(`10`), Expected: raw(`false`)},
		},
		Examples: []Example{
			{Input: raw(`121`), Output: raw(`true`), Explanation: "121 reads as 121 from left to right and from right to left."},
			{Input: raw(`-121`), Output: raw(`false`), Explanation: "From left to right, it reads -121. From right to left, it becomes 121-. Therefore it is not a palindrome."},
		},
	},
}

// Builtin returns the compiled-in catalog.
func Builtin() *Catalog {
	c, _ := New(builtin)
	return c
}
